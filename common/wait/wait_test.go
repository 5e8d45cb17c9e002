package wait

import (
	"errors"
	"fmt"
	"net"
	"time"

	. "github.com/onsi/ginkgo"
	"github.com/onsi/gomega"

	"github.com/openstack-archive/fuel-qa-sub001/common/failure"
)

var errNotReady = errors.New("not ready")
var errBroken = errors.New("broken")

const interval = 20 * time.Millisecond

var _ = Describe("ProdExpecting", func() {
	It("returns the value once expected errors stop", func() {
		calls := 0
		value, err := ProdExpecting(func() (interface{}, error) {
			calls++
			if calls <= 3 {
				return nil, errNotReady
			}
			return "node-4", nil
		}, ErrorIs(errNotReady), "node_online", interval, 2*time.Second, "node never came online")
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(value).To(gomega.Equal("node-4"))
		gomega.Expect(calls).To(gomega.Equal(4))
	})

	It("times out with a ProdError when the error is always expected", func() {
		timeout := 200 * time.Millisecond
		start := time.Now()
		_, err := ProdExpecting(func() (interface{}, error) {
			return nil, fmt.Errorf("wrapped: %w", errNotReady)
		}, ErrorIs(errNotReady), "nailgun_up", interval, timeout, "nailgun did not start")
		elapsed := time.Since(start)

		gomega.Expect(failure.IsProd(err)).To(gomega.BeTrue())
		gomega.Expect(err.Error()).To(gomega.Equal("nailgun_up_timeout: nailgun did not start"))
		gomega.Expect(elapsed).To(gomega.BeNumerically(">=", timeout-interval))
		gomega.Expect(elapsed).To(gomega.BeNumerically("<", timeout+time.Second))
	})

	It("propagates other errors immediately and unwrapped", func() {
		calls := 0
		start := time.Now()
		_, err := ProdExpecting(func() (interface{}, error) {
			calls++
			return nil, errBroken
		}, ErrorIs(errNotReady), "nailgun_up", time.Second, 5*time.Second, "unused")
		gomega.Expect(err).To(gomega.BeIdenticalTo(errBroken))
		gomega.Expect(failure.IsProd(err)).To(gomega.BeFalse())
		gomega.Expect(calls).To(gomega.Equal(1))
		gomega.Expect(time.Since(start)).To(gomega.BeNumerically("<", time.Second))
	})

	It("treats every error as fatal without a classifier", func() {
		_, err := ProdExpecting(func() (interface{}, error) {
			return nil, errNotReady
		}, nil, "x", interval, time.Second, "unused")
		gomega.Expect(err).To(gomega.BeIdenticalTo(errNotReady))
	})
})

var _ = Describe("Prod", func() {
	It("returns once the predicate flips to true", func() {
		calls := 0
		ok, err := Prod(func() (bool, error) {
			calls++
			return calls > 1, nil
		}, "cluster_ready", interval, time.Second, "cluster never became ready")
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(ok).To(gomega.BeTrue())
		gomega.Expect(calls).To(gomega.Equal(2))
	})

	It("wraps the poller timeout in a ProdError", func() {
		ok, err := Prod(func() (bool, error) {
			return false, nil
		}, "deploy", interval, 100*time.Millisecond, "deployment still running")
		gomega.Expect(ok).To(gomega.BeFalse())
		gomega.Expect(failure.IsProd(err)).To(gomega.BeTrue())
		gomega.Expect(failure.IsInfra(err)).To(gomega.BeFalse())
		gomega.Expect(failure.Etype(err)).To(gomega.Equal("deploy_timeout"))
		gomega.Expect(err.Error()).To(gomega.Equal("deploy_timeout: deployment still running"))
	})

	It("returns predicate errors unwrapped", func() {
		_, err := Prod(func() (bool, error) {
			return false, errBroken
		}, "deploy", interval, time.Second, "unused")
		gomega.Expect(err).To(gomega.BeIdenticalTo(errBroken))
	})

	It("reports cluster_ready_timeout after about three seconds", func() {
		start := time.Now()
		_, err := Prod(func() (bool, error) {
			return false, nil
		}, "cluster_ready", time.Second, 3*time.Second, "cluster never became ready")
		elapsed := time.Since(start)
		gomega.Expect(err).To(gomega.HaveOccurred())
		gomega.Expect(err.Error()).To(gomega.Equal("cluster_ready_timeout: cluster never became ready"))
		gomega.Expect(elapsed).To(gomega.BeNumerically(">=", 2*time.Second))
		gomega.Expect(elapsed).To(gomega.BeNumerically("<=", 4*time.Second))
	})
})

var _ = Describe("Until", func() {
	It("rejects non positive interval or timeout as an InfraError", func() {
		called := false
		probe := func() Outcome {
			called = true
			return ReadyWith(1)
		}
		_, err := Until(probe, Options{Action: "x", Interval: 0, Timeout: time.Second})
		gomega.Expect(failure.IsInfra(err)).To(gomega.BeTrue())
		_, err = Until(probe, Options{Action: "x", Interval: time.Second, Timeout: -time.Second})
		gomega.Expect(failure.Etype(err)).To(gomega.Equal("wait_params"))
		gomega.Expect(called).To(gomega.BeFalse())
	})

	It("builds a timeout message when none is given", func() {
		_, err := Until(func() Outcome {
			return NotReadyBecause(errNotReady)
		}, Options{Action: "ostf", Interval: interval, Timeout: 60 * time.Millisecond})
		gomega.Expect(err.Error()).To(gomega.HavePrefix("ostf_timeout: waiting for ostf timed out"))
	})

	It("turns a Fatal outcome without error into an error", func() {
		_, err := Until(func() Outcome {
			return Outcome{State: Fatal}
		}, Options{Action: "x", Interval: interval, Timeout: time.Second})
		gomega.Expect(err).To(gomega.HaveOccurred())
		gomega.Expect(failure.IsProd(err)).To(gomega.BeFalse())
	})
})

var _ = Describe("Classifiers", func() {
	It("matches network errors", func() {
		gomega.Expect(NetworkError(&net.OpError{Op: "dial", Err: errors.New("refused")})).To(gomega.BeTrue())
		gomega.Expect(NetworkError(errBroken)).To(gomega.BeFalse())
	})

	It("combines classifiers", func() {
		c := Or(nil, ErrorIs(errNotReady), NetworkError)
		gomega.Expect(c(errNotReady)).To(gomega.BeTrue())
		gomega.Expect(c(errBroken)).To(gomega.BeFalse())
		gomega.Expect(AnyError(errBroken)).To(gomega.BeTrue())
	})

	It("matches errors by type", func() {
		c := ErrorAs(&failure.InfraError{})
		gomega.Expect(c(fmt.Errorf("revert: %w", failure.NewInfraError("lab_agent", "down")))).To(gomega.BeTrue())
		gomega.Expect(c(failure.NewProdError("x", "y"))).To(gomega.BeFalse())
		gomega.Expect(ErrorAs(nil)(errBroken)).To(gomega.BeFalse())
	})

	It("names states", func() {
		gomega.Expect(Ready.String()).To(gomega.Equal("Ready"))
		gomega.Expect(State(7).String()).To(gomega.Equal("Unknown"))
	})
})
