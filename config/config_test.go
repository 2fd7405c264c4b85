package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/fetch-orchestrator/config"
	"github.com/angeloszaimis/fetch-orchestrator/internal/engine"
)

const minimalConfig = `
providers:
  - id: "alpha"
    base_url: "http://localhost:9101"
    endpoints:
      quote: "/quote/{symbol}"
asset_classes:
  - name: "equity"
    providers: ["alpha"]
    default: true
`

const fullConfig = `
server:
  address: ":8080"
  environment: "prod"
  read_timeout: "3s"

logging:
  level: "debug"

breaker:
  failure_threshold: 3
  initial_backoff: "10s"
  max_backoff: "2m"

retry:
  max_retries: 1
  base_delay: "50ms"

dispatch:
  strategy: "weighted"

health:
  window_duration: "5m"

snapshot:
  redis:
    address: "localhost:6379"
  kafka:
    brokers: ["localhost:9092"]

providers:
  - id: "alpha"
    base_url: "https://api.alpha.test"
    api_key: "inline"
    api_key_env: "ALPHA_TEST_KEY"
    api_key_param: "apikey"
    weight: 3
    timeout: "4s"
    endpoints:
      quote: "/quote/{symbol}"
      chart: "/chart/{symbol}"
  - id: "beta"
    base_url: "http://beta.test"
    api_key_header: "X-Api-Key"
    endpoints:
      news: "/news/{symbol}"

asset_classes:
  - name: "crypto"
    providers: ["beta", "alpha"]
    suffixes: ["-USD"]
  - name: "equity"
    providers: ["alpha"]
    default: true

aliases:
  BTC: "BTC-USD"
`

var _ = Describe("Config", func() {
	var tempDir string

	write := func(name, content string) string {
		path := filepath.Join(tempDir, name)
		Expect(os.WriteFile(path, []byte(content), 0o644)).To(Succeed())
		return path
	}

	BeforeEach(func() {
		tempDir = GinkgoT().TempDir()
	})

	Describe("LoadFile", func() {
		It("should fill defaults around a minimal file", func() {
			cfg, err := config.LoadFile(write("config.yaml", minimalConfig))
			Expect(err).NotTo(HaveOccurred())

			Expect(cfg.Server.Address).To(Equal(":8080"))
			Expect(cfg.Server.Environment).To(Equal(config.EnvDev))
			Expect(cfg.Telemetry.Capacity).To(Equal(500))
			Expect(cfg.Breaker.FailureThreshold).To(Equal(5))
			Expect(cfg.Breaker.InitialBackoffDuration()).To(Equal(30 * time.Second))
			Expect(cfg.Breaker.MaxBackoffDuration()).To(Equal(10 * time.Minute))
			Expect(cfg.Retry.MaxRetries).To(Equal(2))
			Expect(cfg.Retry.AttemptTimeoutDuration()).To(Equal(10 * time.Second))
			Expect(cfg.Dispatch.Strategy).To(Equal("priority"))
			Expect(cfg.Health.WindowSize).To(Equal(100))
			Expect(cfg.Health.CriticalOpenFraction).To(Equal(0.5))
			Expect(cfg.Health.WindowDurationDuration()).To(BeZero())
			Expect(cfg.Snapshot.Redis.Address).To(BeEmpty())
			Expect(cfg.Snapshot.Kafka.Brokers).To(BeEmpty())
		})

		It("should parse every section", func() {
			cfg, err := config.LoadFile(write("config.yaml", fullConfig))
			Expect(err).NotTo(HaveOccurred())

			Expect(cfg.Server.ReadTimeoutDuration()).To(Equal(3 * time.Second))
			Expect(cfg.Logging.Level).To(Equal(config.LogLevelDebug))
			Expect(cfg.Breaker.FailureThreshold).To(Equal(3))
			Expect(cfg.Retry.BaseDelayDuration()).To(Equal(50 * time.Millisecond))
			Expect(cfg.Dispatch.Strategy).To(Equal("weighted"))
			Expect(cfg.Health.WindowDurationDuration()).To(Equal(5 * time.Minute))
			Expect(cfg.Snapshot.Redis.Key).To(Equal("fetch:traces"))
			Expect(cfg.Snapshot.Redis.TTLDuration()).To(Equal(time.Hour))
			Expect(cfg.Snapshot.Kafka.Topic).To(Equal("fetch-traces"))

			Expect(cfg.Providers).To(HaveLen(2))
			alpha := cfg.Providers[0]
			Expect(alpha.Weight).To(Equal(3))
			Expect(alpha.TimeoutDuration()).To(Equal(4 * time.Second))
			Expect(alpha.EngineEndpoints()).To(Equal(map[engine.Engine]string{
				engine.Quote: "/quote/{symbol}",
				engine.Chart: "/chart/{symbol}",
			}))

			Expect(cfg.AssetClasses[0].Providers).To(Equal([]string{"beta", "alpha"}))
			Expect(cfg.AssetClasses[1].Default).To(BeTrue())

			upper := map[string]string{}
			for k, v := range cfg.Aliases {
				upper[strings.ToUpper(k)] = v
			}
			Expect(upper).To(HaveKeyWithValue("BTC", "BTC-USD"))
		})

		It("should prefer the API key from the environment", func() {
			cfg, err := config.LoadFile(write("config.yaml", fullConfig))
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Providers[0].Key()).To(Equal("inline"))

			GinkgoT().Setenv("ALPHA_TEST_KEY", "from-env")
			Expect(cfg.Providers[0].Key()).To(Equal("from-env"))
		})

		It("should apply environment overrides", func() {
			GinkgoT().Setenv("SERVER_ADDRESS", "127.0.0.1:9090")
			GinkgoT().Setenv("DISPATCH_STRATEGY", "least-conn")

			cfg, err := config.LoadFile(write("config.yaml", minimalConfig))
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Server.Address).To(Equal("127.0.0.1:9090"))
			Expect(cfg.Dispatch.Strategy).To(Equal("least-conn"))
		})

		It("should fail on a missing file", func() {
			_, err := config.LoadFile(filepath.Join(tempDir, "absent.yaml"))
			Expect(err).To(HaveOccurred())
		})

		DescribeTable("rejects invalid configuration",
			func(content string) {
				_, err := config.LoadFile(write("config.yaml", content))
				Expect(err).To(HaveOccurred())
			},
			Entry("no providers", `
asset_classes:
  - name: "equity"
    providers: ["alpha"]
`),
			Entry("unknown strategy", minimalConfig+`
dispatch:
  strategy: "fastest"
`),
			Entry("bad duration", minimalConfig+`
breaker:
  initial_backoff: "soon"
`),
			Entry("zero health interval", minimalConfig+`
health:
  interval: "0s"
`),
			Entry("zero initial backoff", minimalConfig+`
breaker:
  initial_backoff: "0s"
  max_backoff: "0s"
`),
			Entry("zero snapshot interval", minimalConfig+`
snapshot:
  interval: "0s"
`),
			Entry("zero retry base delay", minimalConfig+`
retry:
  base_delay: "0s"
`),
			Entry("max backoff below initial", minimalConfig+`
breaker:
  initial_backoff: "1m"
  max_backoff: "30s"
`),
			Entry("bad environment", minimalConfig+`
server:
  environment: "qa"
`),
			Entry("unknown engine endpoint", `
providers:
  - id: "alpha"
    base_url: "http://localhost:9101"
    endpoints:
      options: "/options/{symbol}"
asset_classes:
  - name: "equity"
    providers: ["alpha"]
`),
			Entry("endpoint without placeholder", `
providers:
  - id: "alpha"
    base_url: "http://localhost:9101"
    endpoints:
      quote: "/quote"
asset_classes:
  - name: "equity"
    providers: ["alpha"]
`),
			Entry("non-http base url", `
providers:
  - id: "alpha"
    base_url: "ftp://localhost"
    endpoints:
      quote: "/quote/{symbol}"
asset_classes:
  - name: "equity"
    providers: ["alpha"]
`),
			Entry("class with unknown provider", `
providers:
  - id: "alpha"
    base_url: "http://localhost:9101"
    endpoints:
      quote: "/quote/{symbol}"
asset_classes:
  - name: "equity"
    providers: ["gamma"]
`),
			Entry("duplicate provider ids", `
providers:
  - id: "alpha"
    base_url: "http://localhost:9101"
    endpoints:
      quote: "/quote/{symbol}"
  - id: "alpha"
    base_url: "http://localhost:9102"
    endpoints:
      quote: "/quote/{symbol}"
asset_classes:
  - name: "equity"
    providers: ["alpha"]
`),
			Entry("two default classes", minimalConfig+`
  - name: "fund"
    providers: ["alpha"]
    default: true
`),
			Entry("critical ratio above degraded", minimalConfig+`
health:
  degraded_ratio: 0.8
  critical_ratio: 0.9
`),
			Entry("redis without valid address", minimalConfig+`
snapshot:
  redis:
    address: "nohost"
`),
		)
	})

	Describe("Load", func() {
		It("should read config.yaml from the working directory", func() {
			write("config.yaml", minimalConfig)

			wd, err := os.Getwd()
			Expect(err).NotTo(HaveOccurred())
			Expect(os.Chdir(tempDir)).To(Succeed())
			DeferCleanup(os.Chdir, wd)

			cfg, err := config.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Providers[0].ID).To(Equal("alpha"))
		})
	})
})
