package zzprobe

import (
	"fmt"
	"testing"

	"github.com/roach88/tally/internal/constraint"
	"github.com/roach88/tally/internal/table"
)

func TestProbeMembership(t *testing.T) {
	spec := map[string]any{"name": []any{"Ada", "Cyd"}, "ds": "2018-01-01"}
	c, err := constraint.Normalize(spec)
	if err != nil {
		t.Fatal(err)
	}
	fmt.Println("constraint:", c)
	get := func(path string) table.Value {
		switch path {
		case "name":
			return table.String("Ada")
		case "ds":
			return table.String("2018-01-01")
		}
		return nil
	}
	fmt.Println("matches Ada:", constraint.Matches(c, get))
}
