package extract

import (
	"os"
	"path/filepath"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// FuzzExtractors feeds arbitrary bytes to every extractor. Any input must
// produce either findings or an error, never a panic.
func FuzzExtractors(f *testing.F) {
	entries, err := os.ReadDir("testdata")
	require.NoError(f, err)
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join("testdata", e.Name()))
		require.NoError(f, err)
		f.Add(data)
	}

	registry := DefaultRegistry()
	f.Fuzz(func(t *testing.T, data []byte) {
		for _, tool := range registry.Tools() {
			e, _ := registry.Get(tool)
			res, err := e.Extract(data, "fuzz.json")
			if err != nil {
				assert.ErrorIs(t, err, ErrMalformedInput)
				continue
			}
			require.NotNil(t, res)
			for _, finding := range res.Findings {
				assert.Equal(t, tool, finding.SourceTool)
				assert.LessOrEqual(t, len([]rune(finding.Title)), maxTitleLen)
			}
		}
		_, _, _ = ExtractSARIF(data, "fuzz.sarif")
	})
}

// FuzzTrivyStructured generates well-formed Trivy reports from fuzzed data.
func FuzzTrivyStructured(f *testing.F) {
	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)
		report := &trivyReport{}
		if err := consumer.GenerateStruct(report); err != nil {
			return
		}
		encoded, err := json.Marshal(report)
		if err != nil {
			return
		}

		res, err := TrivyExtractor{}.Extract(encoded, "fuzz.json")
		require.NoError(t, err, "a marshalled report must always decode")

		want := 0
		for _, r := range report.Results {
			want += len(r.Vulnerabilities)
			for _, m := range r.Misconfigurations {
				if m.Status != "PASS" {
					want++
				}
			}
		}
		assert.Len(t, res.Findings, want)
	})
}
