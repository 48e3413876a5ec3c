// Copyright 2026 The gainimpute Authors. SPDX-License-Identifier: Apache-2.0

// Package scenario names missingness scenarios and maps them to their input and output files.
//
// All paths are relative to a base directory:
//
//	Completed_data/{cohort}/{cohort}_all.csv                                   ground truth
//	data_miss_mask/{cohort}/{cohort}_all/{mechanism}/miss{ratio}/{index}.csv   masks
//	data_miss_mask_sample/...                                                  masks for sample tests
//	data_gain/{cohort}/{cohort}_all/{mechanism}/miss{ratio}/{index}.csv        imputed cells
package scenario

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hhsurvey/gainimpute/pkg/schema"
	"github.com/hhsurvey/gainimpute/pkg/support/fsutil"
	"github.com/hhsurvey/gainimpute/pkg/support/imputeerr"
	"github.com/pkg/errors"
)

// Mechanism is the missingness process used to generate a mask.
type Mechanism string

const (
	MCAR Mechanism = "MCAR"
	MAR  Mechanism = "MAR"
	MNAR Mechanism = "MNAR"
)

// Mechanisms lists all known mechanisms, in the order experiments run them.
var Mechanisms = []Mechanism{MCAR, MAR, MNAR}

// ParseMechanism parses a mechanism name, case-insensitive.
func ParseMechanism(s string) (Mechanism, error) {
	upper := Mechanism(strings.ToUpper(strings.TrimSpace(s)))
	for _, m := range Mechanisms {
		if upper == m {
			return m, nil
		}
	}
	return "", errors.Errorf("unknown missing mechanism %q, valid values are %v", s, Mechanisms)
}

// String implements fmt.Stringer.
func (m Mechanism) String() string { return string(m) }

// DefaultMethodDir is where GAIN imputations are written.
const DefaultMethodDir = "data_gain"

// Key identifies one scenario: a cohort, a mechanism, a missing ratio (in percent) and a sample index.
type Key struct {
	Cohort    string
	Mechanism Mechanism
	Ratio     int
	Index     int
}

// String implements fmt.Stringer.
func (k Key) String() string {
	return fmt.Sprintf("%s/%s/miss%d/%d", k.Cohort, k.Mechanism, k.Ratio, k.Index)
}

// Paths resolves scenario files under a base directory.
type Paths struct {
	Base string

	// MethodDir is the output directory name under Base for imputations.
	MethodDir string
}

// NewPaths creates Paths for the base directory, expanding "~". MethodDir defaults to DefaultMethodDir.
func NewPaths(base string) (Paths, error) {
	base, err := fsutil.ReplaceTildeInDir(base)
	if err != nil {
		return Paths{}, err
	}
	return Paths{Base: base, MethodDir: DefaultMethodDir}, nil
}

func (p Paths) scenarioFile(root string, k Key) string {
	return filepath.Join(p.Base, root, k.Cohort, k.Cohort+"_all", k.Mechanism.String(),
		fmt.Sprintf("miss%d", k.Ratio), fmt.Sprintf("%d.csv", k.Index))
}

// Full returns the ground-truth table path of the cohort.
func (p Paths) Full(cohort string) string {
	return filepath.Join(p.Base, "Completed_data", cohort, cohort+"_all.csv")
}

// Mask returns the mask path of the scenario; sample selects the sample-test masks.
func (p Paths) Mask(k Key, sample bool) string {
	root := "data_miss_mask"
	if sample {
		root = "data_miss_mask_sample"
	}
	return p.scenarioFile(root, k)
}

// Output returns the path where the scenario's imputed cells are written.
func (p Paths) Output(k Key) string {
	return p.scenarioFile(p.MethodDir, k)
}

// MethodOutput returns the output path of the scenario for another imputation method directory,
// e.g. "data_mice".
func (p Paths) MethodOutput(methodDir string, k Key) string {
	return p.scenarioFile(methodDir, k)
}

// Inputs of a scenario.
type Inputs struct {
	Full schema.Table
	Mask schema.RawMask
}

// Loader reads scenario inputs, caching the ground-truth tables since every scenario of a cohort shares one.
type Loader struct {
	Paths Paths
	full  map[string]schema.Table
}

// NewLoader creates a Loader for the given paths.
func NewLoader(paths Paths) *Loader {
	return &Loader{Paths: paths, full: make(map[string]schema.Table)}
}

// Load reads the ground truth and the mask of the scenario. Missing files are reported as IOError.
func (l *Loader) Load(k Key, sample bool) (Inputs, error) {
	full, err := l.FullTable(k.Cohort)
	if err != nil {
		return Inputs{}, err
	}
	maskPath := l.Paths.Mask(k, sample)
	if err := mustExist(maskPath); err != nil {
		return Inputs{}, err
	}
	mask, err := schema.ReadMask(maskPath)
	if err != nil {
		return Inputs{}, err
	}
	return Inputs{Full: full, Mask: mask}, nil
}

// FullTable returns the ground truth of the cohort.
func (l *Loader) FullTable(cohort string) (schema.Table, error) {
	if t, found := l.full[cohort]; found {
		return t, nil
	}
	path := l.Paths.Full(cohort)
	if err := mustExist(path); err != nil {
		return schema.Table{}, err
	}
	t, err := schema.ReadTable(path)
	if err != nil {
		return schema.Table{}, err
	}
	l.full[cohort] = t
	return t, nil
}

func mustExist(path string) error {
	exists, err := fsutil.FileExists(path)
	if err != nil {
		return imputeerr.Wrap(imputeerr.IOError, err, "checking scenario input")
	}
	if !exists {
		return imputeerr.New(imputeerr.IOError, "scenario input %q not found", path)
	}
	return nil
}

// WriteResult writes the imputed cells of the scenario to its output path.
func (p Paths) WriteResult(k Key, t schema.Table) error {
	path := p.Output(k)
	if err := schema.WriteTable(path, t); err != nil {
		return errors.WithMessagef(err, "scenario %s", k)
	}
	return nil
}
