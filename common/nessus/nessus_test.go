package nessus_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/gorilla/mux"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/openstack-archive/fuel-qa-sub001/common/failure"
	"github.com/openstack-archive/fuel-qa-sub001/common/nessus"
)

type fakeScanner struct {
	mu          sync.Mutex
	logins      int
	validToken  string
	statusPolls int
	finalStatus string
	scanBody    map[string]interface{}
}

func (f *fakeScanner) router() http.Handler {
	r := mux.NewRouter()
	reply := func(w http.ResponseWriter, body string) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}
	r.HandleFunc("/session", func(w http.ResponseWriter, req *http.Request) {
		var creds map[string]string
		_ = json.NewDecoder(req.Body).Decode(&creds)
		if creds["password"] != "nessus" {
			w.WriteHeader(http.StatusUnauthorized)
			reply(w, `{"error": "Invalid Credentials"}`)
			return
		}
		f.mu.Lock()
		f.logins++
		f.validToken = fmt.Sprintf("token-%d", f.logins)
		token := f.validToken
		f.mu.Unlock()
		reply(w, fmt.Sprintf(`{"token": %q}`, token))
	}).Methods(http.MethodPost)

	api := r.NewRoute().Subrouter()
	api.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			f.mu.Lock()
			valid := req.Header.Get("X-Cookie") == "token="+f.validToken
			f.mu.Unlock()
			if !valid {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, req)
		})
	})
	api.HandleFunc("/editor/policy/templates", func(w http.ResponseWriter, req *http.Request) {
		reply(w, `{"templates": [{"uuid": "basic-uuid", "name": "basic"}, {"uuid": "adv-uuid", "name": "advanced", "title": "Advanced Scan"}]}`)
	})
	api.HandleFunc("/policies", func(w http.ResponseWriter, req *http.Request) {
		reply(w, `{"policy_id": 12, "policy_name": "fuel"}`)
	}).Methods(http.MethodPost)
	api.HandleFunc("/scans", func(w http.ResponseWriter, req *http.Request) {
		_ = json.NewDecoder(req.Body).Decode(&f.scanBody)
		reply(w, `{"scan": {"id": 5, "uuid": "template-uuid"}}`)
	}).Methods(http.MethodPost)
	api.HandleFunc("/scans/5/launch", func(w http.ResponseWriter, req *http.Request) {
		reply(w, `{"scan_uuid": "run-uuid"}`)
	}).Methods(http.MethodPost)
	api.HandleFunc("/scans/5", func(w http.ResponseWriter, req *http.Request) {
		f.mu.Lock()
		f.statusPolls++
		status := "running"
		if f.statusPolls > 2 {
			status = f.finalStatus
		}
		f.mu.Unlock()
		reply(w, fmt.Sprintf(`{"info": {"status": %q}}`, status))
	}).Methods(http.MethodGet)
	api.HandleFunc("/scans/5/export", func(w http.ResponseWriter, req *http.Request) {
		reply(w, `{"file": 77}`)
	}).Methods(http.MethodPost)
	api.HandleFunc("/scans/5/export/77/status", func(w http.ResponseWriter, req *http.Request) {
		reply(w, `{"status": "ready"}`)
	})
	api.HandleFunc("/scans/5/export/77/download", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html>report</html>")
	})
	api.HandleFunc("/plugins/families", func(w http.ResponseWriter, req *http.Request) {
		reply(w, `{"families": [{"id": 1, "name": "Ubuntu Local Security Checks", "count": 5000}]}`)
	})
	return r
}

var _ = Describe("Client", func() {
	var (
		scanner *fakeScanner
		server  *httptest.Server
		client  *nessus.Client
		ctx     context.Context
	)

	BeforeEach(func() {
		scanner = &fakeScanner{finalStatus: nessus.StatusCompleted}
		server = httptest.NewServer(scanner.router())
		client = nessus.New(server.URL, "admin", "nessus", false)
		ctx = context.Background()
	})

	AfterEach(func() {
		server.Close()
	})

	It("runs a scan and downloads the report", func() {
		policyID, err := client.CreatePolicy(ctx, "advanced", "fuel", "master node")
		Expect(err).ToNot(HaveOccurred())
		Expect(policyID).To(Equal(int64(12)))

		scanID, err := client.CreateScan(ctx, "fuel-master", "scan", []string{"10.109.0.2", "10.109.0.3"}, policyID, "adv-uuid")
		Expect(err).ToNot(HaveOccurred())
		Expect(scanID).To(Equal(int64(5)))
		settings := scanner.scanBody["settings"].(map[string]interface{})
		Expect(settings).To(HaveKeyWithValue("text_targets", "10.109.0.2,10.109.0.3"))

		run, err := client.LaunchScan(ctx, scanID)
		Expect(err).ToNot(HaveOccurred())
		Expect(run).To(Equal("run-uuid"))

		Expect(client.WaitScanCompleted(ctx, scanID, 10*time.Millisecond, 5*time.Second)).To(Succeed())
		Expect(scanner.statusPolls).To(Equal(3))

		report, err := client.ExportScan(ctx, scanID, "html", 10*time.Millisecond, time.Second)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(report)).To(Equal("<html>report</html>"))
		Expect(scanner.logins).To(Equal(1))
	})

	It("treats an aborted scan as an infrastructure failure", func() {
		scanner.finalStatus = nessus.StatusAborted
		err := client.WaitScanCompleted(ctx, 5, 10*time.Millisecond, 5*time.Second)
		Expect(failure.IsInfra(err)).To(BeTrue())
		Expect(failure.Etype(err)).To(Equal("nessus_scan"))
	})

	It("logs in again when the session expired", func() {
		families, err := client.ListPluginFamilies(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(families).To(HaveLen(1))

		scanner.mu.Lock()
		scanner.validToken = "rotated"
		scanner.mu.Unlock()

		families, err = client.ListPluginFamilies(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(families[0].Count).To(Equal(int64(5000)))
		Expect(scanner.logins).To(Equal(2))
	})

	It("reports unknown templates and bad credentials", func() {
		_, err := client.CreatePolicy(ctx, "pci", "fuel", "")
		Expect(failure.Etype(err)).To(Equal("nessus_template"))

		bad := nessus.New(server.URL, "admin", "wrong", false)
		_, err = bad.ListPolicies(ctx)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("nessus login as admin"))
		Expect(err.Error()).To(ContainSubstring("401"))
	})
})
