package formats

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"testing"

	"github.com/JonMunkholm/multinet/internal/core"
)

// ============================================================================
// Decode Benchmarks
// ============================================================================

// BenchmarkDecodeData_LargeFile benchmarks UTF-8 checking on a BOM-prefixed body.
func BenchmarkDecodeData_LargeFile(b *testing.B) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, generateNodeCSV(1000)...)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		core.DecodeData(data)
	}
}

// ============================================================================
// CSV Benchmarks
// ============================================================================

// BenchmarkParseCSV benchmarks CSV parsing memory usage.
func BenchmarkParseCSV(b *testing.B) {
	text := string(generateNodeCSV(100))

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		ParseCSV(text)
	}
}

// BenchmarkBuildPlan_CSV compares node and edge tables end to end.
func BenchmarkBuildPlan_CSV(b *testing.B) {
	cases := []struct {
		name string
		data []byte
	}{
		{"nodes_1000", generateNodeCSV(1000)},
		{"edges_1000", generateEdgeCSV(1000)},
	}

	for _, tc := range cases {
		b.Run(tc.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := core.BuildPlan(FormatCSV, tc.data, core.BuildOptions{Table: "t"}); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkValidateCSV_Edges isolates the per-row reference checks.
func BenchmarkValidateCSV_Edges(b *testing.B) {
	header, rows, err := ParseCSV(string(generateEdgeCSV(1000)))
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ValidateCSV(header, rows, "")
	}
}

// ============================================================================
// Tree Benchmarks
// ============================================================================

// BenchmarkParseNewick benchmarks a balanced tree with 1023 nodes.
func BenchmarkParseNewick(b *testing.B) {
	text := generateNewick(9) + ";"

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := ParseNewick(text); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkBuildPlan_D3JSON benchmarks a graph with 500 nodes in a chain.
func BenchmarkBuildPlan_D3JSON(b *testing.B) {
	data := generateD3(500)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := core.BuildPlan(FormatD3JSON, data, core.BuildOptions{Table: "g"}); err != nil {
			b.Fatal(err)
		}
	}
}

// ============================================================================
// Parallel Benchmarks
// ============================================================================

// BenchmarkBuildPlanParallel checks that concurrent uploads do not contend
// on the format registry.
func BenchmarkBuildPlanParallel(b *testing.B) {
	data := generateNodeCSV(100)

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			core.BuildPlan(FormatCSV, data, core.BuildOptions{Table: "t"})
		}
	})
}

// ============================================================================
// Helper Functions
// ============================================================================

// generateNodeCSV generates a node table with the specified number of rows.
func generateNodeCSV(rows int) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	w.Write([]string{"_key", "name", "email", "joined", "score"})
	for i := 0; i < rows; i++ {
		w.Write([]string{
			fmt.Sprintf("n%d", i),
			"John Doe",
			"john@example.com",
			"2024-01-15",
			"1234.56",
		})
	}
	w.Flush()

	return buf.Bytes()
}

// generateEdgeCSV generates an edge table linking consecutive nodes.
func generateEdgeCSV(rows int) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	w.Write([]string{"_from", "_to", "weight"})
	for i := 0; i < rows; i++ {
		w.Write([]string{
			fmt.Sprintf("people/n%d", i),
			fmt.Sprintf("people/n%d", i+1),
			"1",
		})
	}
	w.Flush()

	return buf.Bytes()
}

// generateNewick returns a complete binary tree of the given depth with
// uniquely named nodes.
func generateNewick(depth int) string {
	next := 0
	var build func(d int) string
	build = func(d int) string {
		next++
		name := fmt.Sprintf("n%d", next)
		if d == 0 {
			return name + ":1"
		}
		return "(" + build(d-1) + "," + build(d-1) + ")" + name + ":1"
	}
	return build(depth)
}

func generateD3(nodes int) []byte {
	var sb strings.Builder
	sb.WriteString(`{"nodes":[`)
	for i := 0; i < nodes; i++ {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, `{"id":"n%d","group":%d}`, i, i%7)
	}
	sb.WriteString(`],"links":[`)
	for i := 0; i+1 < nodes; i++ {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, `{"source":"n%d","target":"n%d","value":1}`, i, i+1)
	}
	sb.WriteString(`]}`)
	return []byte(sb.String())
}
