package wiring

import (
	"context"
	"os"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"ratchet/internal/gate"
	"ratchet/internal/registry"
	"ratchet/internal/workspace"
)

var _ = ginkgo.Describe("Run", func() {
	ginkgo.It("registers the canon and passes every gate on a seeded workspace", func() {
		dir := ginkgo.GinkgoT().TempDir()

		report, reportRel, err := Run(context.Background(), dir)
		gomega.Expect(err).To(gomega.Succeed())
		gomega.Expect(report.OverallPass).To(gomega.BeTrue())
		gomega.Expect(gate.ExitCode(report)).To(gomega.Equal(gate.ExitPass))
		gomega.Expect(report.LifecycleGuard.LifecycleID).To(gomega.Equal(LifecycleID))
		gomega.Expect(report.Register.Result.NewDecisionIDs).To(gomega.HaveLen(12))
		gomega.Expect(report.CanonLayout.Missing).To(gomega.BeEmpty())

		layout := workspace.NewLayout(dir)
		gomega.Expect(layout.Abs(reportRel)).To(gomega.BeARegularFile())
		gomega.Expect(layout.Abs(workspace.RegistryRel)).To(gomega.BeARegularFile())
	})

	ginkgo.It("denies resume after the raw evidence mutates", func() {
		dir := ginkgo.GinkgoT().TempDir()
		_, _, err := Run(context.Background(), dir)
		gomega.Expect(err).To(gomega.Succeed())

		layout := workspace.NewLayout(dir)
		mutated := `{"metrics": {"score": 0.42, "runs": [1]}}`
		gomega.Expect(os.WriteFile(layout.Abs(RawMetricsRel), []byte(mutated), 0o644)).To(gomega.Succeed())

		report := gate.Run(context.Background(), layout, gate.Options{})
		gomega.Expect(report.OverallPass).To(gomega.BeFalse())
		gomega.Expect(gate.ExitCode(report)).To(gomega.Equal(gate.ExitGuardDenied))
		gomega.Expect(report.LifecycleGuard.Checks).To(gomega.HaveKeyWithValue("evidence_hashes_match_raw", false))
		gomega.Expect(report.LifecycleGuard.EvidenceHashViolations).To(gomega.ContainElement("E1:raw_hash_mismatch"))
	})

	ginkgo.It("reports missing canon documents as an incomplete layout", func() {
		dir := ginkgo.GinkgoT().TempDir()
		gomega.Expect(Seed(dir)).To(gomega.Succeed())

		layout := workspace.NewLayout(dir)
		gomega.Expect(os.Remove(layout.Abs(workspace.LayoutPolicyRel))).To(gomega.Succeed())

		report := gate.Run(context.Background(), layout, gate.Options{})
		gomega.Expect(report.LifecycleGuard.Allowed).To(gomega.BeTrue())
		gomega.Expect(report.Register.OK).To(gomega.BeTrue())
		gomega.Expect(gate.ExitCode(report)).To(gomega.Equal(gate.ExitLayoutIncomplete))
		gomega.Expect(report.CanonLayout.Missing).To(gomega.ConsistOf(workspace.LayoutPolicyRel))
	})

	ginkgo.It("supersedes a changed artifact instead of duplicating it", func() {
		dir := ginkgo.GinkgoT().TempDir()
		_, _, err := Run(context.Background(), dir)
		gomega.Expect(err).To(gomega.Succeed())

		layout := workspace.NewLayout(dir)
		updated := `{"claims": [{"claim_id": "C1", "status": "supported", "evidence_refs": ["E1"]}, {"claim_id": "C2", "status": "speculative", "evidence_refs": []}]}`
		gomega.Expect(os.WriteFile(layout.Abs(workspace.ClaimsMatrixRel), []byte(updated), 0o644)).To(gomega.Succeed())

		report := gate.Run(context.Background(), layout, gate.Options{})
		gomega.Expect(report.OverallPass).To(gomega.BeTrue())
		gomega.Expect(report.Register.Result.NewDecisionIDs).To(gomega.HaveLen(1))

		reg, err := registry.Load(layout.Abs(workspace.RegistryRel))
		gomega.Expect(err).To(gomega.Succeed())
		var active, superseded []registry.Entry
		for _, e := range reg.Entries {
			if e.Kind != "claims_matrix" {
				continue
			}
			switch e.Status {
			case registry.StatusActive:
				active = append(active, e)
			case registry.StatusSuperseded:
				superseded = append(superseded, e)
			}
		}
		gomega.Expect(active).To(gomega.HaveLen(1))
		gomega.Expect(superseded).To(gomega.HaveLen(1))
		gomega.Expect(active[0].Supersedes).To(gomega.ConsistOf(superseded[0].DecisionID))
	})
})
