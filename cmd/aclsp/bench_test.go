package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"
)

// script returns a configure script with n feature checks.
func script(n int) string {
	var sb strings.Builder
	sb.WriteString("AC_INIT([bench], [1.0])\n")
	sb.WriteString("dnl Check a feature.\nAC_DEFUN([BENCH_CHECK], [AC_MSG_CHECKING([for $1])])\n")
	for i := range n {
		fmt.Fprintf(&sb, "if test \"x$with_f%d\" = xyes; then\n  BENCH_CHECK([f%d])\n  AC_DEFINE([HAVE_F%d], [1], [Feature %d.])\nfi\n", i, i, i, i)
	}
	sb.WriteString("AC_OUTPUT\n")
	return sb.String()
}

func BenchmarkDocumentParse(b *testing.B) {
	for _, size := range []int{10, 100, 1000} {
		b.Run(fmt.Sprintf("checks=%d", size), func(b *testing.B) {
			text := script(size)
			b.SetBytes(int64(len(text)))
			for b.Loop() {
				newDocument("file:///configure.ac", text, nil)
			}
		})
	}
}

func BenchmarkSemanticTokens(b *testing.B) {
	for _, size := range []int{10, 100, 1000} {
		b.Run(fmt.Sprintf("checks=%d", size), func(b *testing.B) {
			doc := newDocument("file:///configure.ac", script(size), nil)
			for b.Loop() {
				doc.semanticTokens()
			}
		})
	}
}

func BenchmarkDidChange(b *testing.B) {
	text := script(100)
	doc := newDocument("file:///configure.ac", text, nil)
	i := 0
	for b.Loop() {
		// Simulate a small edit
		doc.setText(text + fmt.Sprintf("\n# comment %d\n", i))
		i++
	}
}

func TestResponseLatency(t *testing.T) {
	text := script(100)

	start := time.Now()
	doc := newDocument("file:///configure.ac", text, nil)
	parseTime := time.Since(start)

	start = time.Now()
	tokens := doc.semanticTokens()
	tokenTime := time.Since(start)

	start = time.Now()
	syms := doc.symbols(doc.root)
	symbolTime := time.Since(start)

	// JSON marshaling is part of the response time.
	start = time.Now()
	data, err := json.Marshal(struct {
		Data []uint32 `json:"data"`
	}{Data: tokens})
	if err != nil {
		t.Fatal(err)
	}
	marshalTime := time.Since(start)

	if len(doc.problems) != 0 {
		t.Errorf("problems in generated script: %v", doc.problems)
	}
	if len(syms) != 102 {
		t.Errorf("got %d top-level symbols, want 102", len(syms))
	}

	t.Logf("Document parse:    %v", parseTime)
	t.Logf("Semantic tokens:   %v", tokenTime)
	t.Logf("Document symbols:  %v", symbolTime)
	t.Logf("JSON marshal:      %v (response size: %d bytes)", marshalTime, len(data))
	t.Logf("Total:             %v", parseTime+tokenTime+symbolTime+marshalTime)
}
