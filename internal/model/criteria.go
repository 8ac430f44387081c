package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Criteria is the targeting input a discovery session is scoped to.
type Criteria struct {
	ProductDescription string   `json:"productDescription,omitempty" validate:"max=4000"`
	States             []string `json:"states" validate:"required,min=1,max=60,dive,required,max=64"`
	TargetCategories   []string `json:"targetCategories,omitempty" validate:"max=20,dive,required,max=128"`
	Competitors        []string `json:"competitors,omitempty" validate:"max=20,dive,required,max=128"`
	CompanyDomain      string   `json:"companyDomain,omitempty" validate:"omitempty,max=253"`
}

// Normalize returns a copy with trimmed strings and sorted, de-duplicated
// arrays so that semantically equal criteria compare and hash equal.
func (c Criteria) Normalize() Criteria {
	return Criteria{
		ProductDescription: strings.Join(strings.Fields(c.ProductDescription), " "),
		States:             normalizeList(c.States, strings.ToUpper),
		TargetCategories:   normalizeList(c.TargetCategories, strings.ToLower),
		Competitors:        normalizeNames(c.Competitors),
		CompanyDomain:      normalizeDomain(c.CompanyDomain),
	}
}

// Hash is a stable 64-bit fingerprint of the normalized criteria.
func (c Criteria) Hash() string {
	data, _ := json.Marshal(c.Normalize())
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// HashParts fingerprints an arbitrary ordered list of strings. Used for cache
// keys that are not whole criteria.
func HashParts(parts ...string) string {
	d := xxhash.New()
	for _, p := range parts {
		_, _ = d.WriteString(p)
		_, _ = d.Write([]byte{0})
	}
	return fmt.Sprintf("%016x", d.Sum64())
}

func normalizeList(in []string, fold func(string) string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = fold(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// normalizeNames keeps the caller's casing for display but de-duplicates and
// orders case-insensitively.
func normalizeNames(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.Join(strings.Fields(v), " ")
		if v == "" {
			continue
		}
		k := strings.ToLower(v)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i]) < strings.ToLower(out[j])
	})
	return out
}

func normalizeDomain(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimPrefix(d, "www.")
	return strings.TrimRight(d, "/")
}
