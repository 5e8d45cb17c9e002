package setup_environment

import (
	"context"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/openstack-archive/fuel-qa-sub001/common"
	"github.com/openstack-archive/fuel-qa-sub001/common/failure"
	"github.com/openstack-archive/fuel-qa-sub001/common/fueltest"
)

// SetupMaster turns the freshly installed master node into the "ready" snapshot.
func SetupMaster(ctx context.Context) {
	tb := fueltest.Env()
	tb.CheckRunOrSkip(ctx, common.SnapshotReady)

	By("reverting the installed master node")
	failure.Raise(tb.RevertSnapshot(ctx, common.SnapshotEmpty))

	By("checking the master node release")
	failure.Raise(tb.CheckFuelVersion(ctx))
	releaseID, err := tb.FuelWeb.ReleaseID(ctx)
	Expect(err).ToNot(HaveOccurred())
	logf.Log.Info("Deployable release found", "id", releaseID)

	Expect(tb.MakeSnapshot(ctx, common.SnapshotReady, true)).To(Succeed())
}

// BootstrapSlaves starts count slaves from "ready" and snapshots the result.
func BootstrapSlaves(ctx context.Context, count int, snapshot string) {
	tb := fueltest.Env()
	tb.CheckRunOrSkip(ctx, snapshot)

	failure.Raise(tb.RevertSnapshot(ctx, common.SnapshotReady))

	By("bootstrapping slaves")
	names, err := tb.BootstrapNodes(ctx, count)
	failure.Raise(err)
	Expect(names).To(HaveLen(count))

	Expect(tb.MakeSnapshot(ctx, snapshot, true)).To(Succeed())
}
