package gate

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"govengine/internal/rules"
	"govengine/internal/rules/models"
)

type GateSuite struct {
	suite.Suite
}

func TestGateSuite(t *testing.T) {
	suite.Run(t, new(GateSuite))
}

func consistentInputs() Inputs {
	return Inputs{
		Rules: []models.Rule{
			{ID: "RN01", EngineRef: "StrictLegality", AppliesToUseCases: []string{"UC01"}},
			{ID: "RN03", EngineRef: "SegregationOfDuties", AppliesToUseCases: []string{"UC01", "UC02"}},
		},
		UseCases: []models.UseCase{
			{ID: "UC01", RuleIDs: []string{"RN01", "RN03"}},
			{ID: "UC02", RuleIDs: []string{"RN03"}},
		},
		Exports:    []string{"SegregationOfDuties", "StrictLegality"},
		Registered: []string{"SegregationOfDuties", "StrictLegality"},
	}
}

func subjects(findings []Finding, check Check) []string {
	var out []string
	for _, f := range findings {
		if f.Check == check {
			out = append(out, f.Subject)
		}
	}
	return out
}

func (s *GateSuite) TestConsistentInputsPass() {
	report := Run(consistentInputs())
	s.True(report.Passed())
	s.Empty(report.Violations)
	s.Empty(report.Warnings)
}

func (s *GateSuite) TestUnresolvedEngineRefNamesRule() {
	in := consistentInputs()
	in.Rules = append(in.Rules, models.Rule{ID: "RN07", EngineRef: "Missing"})

	report := Run(in)
	s.False(report.Passed())
	s.Equal([]string{"RN07"}, subjects(report.Violations, CheckEngineRefResolves))
	s.Contains(report.Violations[0].Message, `"Missing"`)
}

func (s *GateSuite) TestOrphanImplementationFails() {
	in := consistentInputs()
	in.Exports = append(in.Exports, "Unused")
	in.Registered = append(in.Registered, "Unused")

	report := Run(in)
	s.False(report.Passed())
	s.Equal([]string{"Unused"}, subjects(report.Violations, CheckImplementationReferenced))
	s.Empty(subjects(report.Violations, CheckRegistryDrift))
}

func (s *GateSuite) TestMissingRuleIDNamesUseCaseAndRule() {
	in := consistentInputs()
	in.UseCases[1].RuleIDs = append(in.UseCases[1].RuleIDs, "RN42")

	report := Run(in)
	s.False(report.Passed())
	s.Equal([]string{"UC02"}, subjects(report.Violations, CheckRuleIDExists))
	s.Contains(report.Violations[0].Message, "RN42")
}

func (s *GateSuite) TestEveryViolationIsReported() {
	in := consistentInputs()
	in.Rules = append(in.Rules, models.Rule{ID: "RN08", EngineRef: "Ghost"})
	in.UseCases = append(in.UseCases, models.UseCase{ID: "UC09", RuleIDs: []string{"RN90", "RN91"}})
	in.Exports = append(in.Exports, "Stray")

	report := Run(in)
	s.Len(subjects(report.Violations, CheckEngineRefResolves), 1)
	s.Len(subjects(report.Violations, CheckImplementationReferenced), 1)
	s.Len(subjects(report.Violations, CheckRuleIDExists), 2)
	s.Equal([]string{"Stray"}, subjects(report.Violations, CheckRegistryDrift))
}

func (s *GateSuite) TestRegistryDrift() {
	in := consistentInputs()
	in.Registered = []string{"StrictLegality", "Renamed"}

	report := Run(in)
	s.ElementsMatch([]string{"SegregationOfDuties", "Renamed"}, subjects(report.Violations, CheckRegistryDrift))
}

func (s *GateSuite) TestAppliesToMismatchOnlyWarns() {
	in := consistentInputs()
	in.Rules[0].AppliesToUseCases = []string{"UC02", "UC77"}

	report := Run(in)
	s.True(report.Passed())
	// RN01 -> UC02 not listed, RN01 -> UC77 unknown, UC01 lists RN01 without back-reference
	s.Len(report.Warnings, 3)
}

func (s *GateSuite) TestWriteDiagnostics() {
	in := consistentInputs()
	in.Rules = append(in.Rules, models.Rule{ID: "RN07", EngineRef: "Missing"})
	report := Run(in)

	var buf bytes.Buffer
	s.Require().NoError(report.Write(&buf, in))
	s.Contains(buf.String(), "FAIL [A] RN07")
	s.Contains(buf.String(), "FAIL governance gate: 1 violation(s)")

	buf.Reset()
	s.Require().NoError(Run(consistentInputs()).Write(&buf, consistentInputs()))
	s.Contains(buf.String(), "PASS governance gate")
}

func (s *GateSuite) TestScanExports() {
	dir := s.T().TempDir()
	src := `package impl

type Payload map[string]any

type Checker struct{}

func (Checker) Method() {}

func Exported() {}

func helper() {}

var Also = helper

const Limit = 0.6

var unexported = helper

type Func func()
`
	s.Require().NoError(os.WriteFile(filepath.Join(dir, "impl.go"), []byte(src), 0o600))
	s.Require().NoError(os.WriteFile(filepath.Join(dir, "impl_test.go"), []byte("package impl\n\nfunc TestOnly() {}\n"), 0o600))

	names, err := ScanExports(dir)
	s.Require().NoError(err)
	s.Equal([]string{"Also", "Exported", "Limit"}, names)

	_, err = ScanExports(s.T().TempDir())
	s.Error(err)
}

func (s *GateSuite) TestExportedFuncValueWithoutRuleFails() {
	dir := s.T().TempDir()
	src := `package impl

type Payload map[string]any

type Result struct{}

func StrictLegality(p Payload) Result { return Result{} }

var RogueRule = func(p Payload) Result { return Result{} }
`
	s.Require().NoError(os.WriteFile(filepath.Join(dir, "impl.go"), []byte(src), 0o600))

	exports, err := ScanExports(dir)
	s.Require().NoError(err)
	s.Equal([]string{"RogueRule", "StrictLegality"}, exports)

	in := Inputs{
		Rules:      []models.Rule{{ID: "RN01", EngineRef: "StrictLegality", AppliesToUseCases: []string{"UC01"}}},
		UseCases:   []models.UseCase{{ID: "UC01", RuleIDs: []string{"RN01"}}},
		Exports:    exports,
		Registered: []string{"StrictLegality"},
	}
	report := Run(in)
	s.False(report.Passed())
	s.Equal([]string{"RogueRule"}, subjects(report.Violations, CheckImplementationReferenced))
}

// The shipped governance documents and implementation package must pass.
func (s *GateSuite) TestRepositoryIsConsistent() {
	root := filepath.Join("..", "..", "..")
	in, err := Load(context.Background(), Paths{
		Rules:    filepath.Join(root, "governance", "institutional-rules.yaml"),
		UseCases: filepath.Join(root, "governance", "use-cases.yaml"),
		ImplDir:  filepath.Join("..", "impl"),
	}, rules.Registered())
	s.Require().NoError(err)

	report := Run(in)
	var buf bytes.Buffer
	s.Require().NoError(report.Write(&buf, in))
	s.True(report.Passed(), buf.String())
	s.Empty(report.Warnings, buf.String())
}
