package httpserver_test

import (
	"context"
	"io"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/fetch-orchestrator/internal/httpserver"
)

var _ = Describe("HTTP Server", func() {
	noop := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	Context("server creation", func() {
		DescribeTable("valid addresses",
			func(addr string) {
				srv, err := httpserver.New(addr, noop, httpserver.Timeouts{})
				Expect(err).NotTo(HaveOccurred())
				Expect(srv.Addr()).To(Equal(addr))
			},
			Entry("hostname", "localhost:9999"),
			Entry("IP address", "127.0.0.1:9999"),
			Entry("port only", ":9999"),
		)

		DescribeTable("invalid addresses",
			func(addr string) {
				srv, err := httpserver.New(addr, noop, httpserver.Timeouts{})
				Expect(err).To(HaveOccurred())
				Expect(srv).To(BeNil())
			},
			Entry("too many colons", "invalid:host:port"),
			Entry("missing port", "localhost"),
			Entry("empty port", "localhost:"),
			Entry("bad host", "bad_host!:8080"),
		)
	})

	Context("server lifecycle", func() {
		var testServer *httpserver.Server

		AfterEach(func() {
			if testServer != nil {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = testServer.Shutdown(ctx)
			}
		})

		It("starts and handles requests", func() {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("test"))
			})
			var err error
			testServer, err = httpserver.New(":19999", handler, httpserver.Timeouts{Read: time.Second})
			Expect(err).NotTo(HaveOccurred())

			go func() {
				defer GinkgoRecover()
				Expect(testServer.Start()).To(Succeed())
			}()

			Eventually(func() (string, error) {
				resp, err := http.Get("http://localhost:19999")
				if err != nil {
					return "", err
				}
				defer resp.Body.Close()
				body, err := io.ReadAll(resp.Body)
				return string(body), err
			}).Should(Equal("test"))
		})

		It("shuts down gracefully", func() {
			var err error
			testServer, err = httpserver.New(":19998", noop, httpserver.Timeouts{Shutdown: time.Second})
			Expect(err).NotTo(HaveOccurred())

			done := make(chan error, 1)
			go func() { done <- testServer.Start() }()

			Eventually(func() error {
				resp, err := http.Get("http://localhost:19998")
				if err == nil {
					resp.Body.Close()
				}
				return err
			}).Should(Succeed())

			Expect(testServer.Shutdown(context.Background())).To(Succeed())
			Eventually(done).Should(Receive(BeNil()))
		})
	})
})
