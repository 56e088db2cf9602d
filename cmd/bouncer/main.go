// Command bouncer runs the authorization server, grounded on the
// stacklok-toolhive cmd/thv-registry-api/app serve-command shape
// (cobra.Command + viper-bound flags) generalized from that tool's
// ConfigMap-backed registry to this server's EntityStore/TemplateLoader
// assembly and dexidp-dex's run.Group graceful shutdown.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/bouncerhq/bouncer/internal/codestore"
	"github.com/bouncerhq/bouncer/internal/codestore/memory"
	"github.com/bouncerhq/bouncer/internal/codestore/redisstore"
	"github.com/bouncerhq/bouncer/internal/entity"
	"github.com/bouncerhq/bouncer/internal/loader"
	"github.com/bouncerhq/bouncer/internal/loader/controlplane"
	"github.com/bouncerhq/bouncer/internal/loader/file"
	"github.com/bouncerhq/bouncer/internal/metrics"
	"github.com/bouncerhq/bouncer/internal/scripthost"
	"github.com/bouncerhq/bouncer/internal/signer"
	"github.com/bouncerhq/bouncer/internal/templates"
	"github.com/bouncerhq/bouncer/internal/templates/fsstore"
	"github.com/bouncerhq/bouncer/internal/templates/s3store"
	"github.com/bouncerhq/bouncer/internal/templatesync"
	"github.com/bouncerhq/bouncer/pkg/config"
	"github.com/bouncerhq/bouncer/pkg/httpserver"
	"github.com/bouncerhq/bouncer/pkg/logger"
	"github.com/bouncerhq/bouncer/pkg/observability"
)

// Version is overridden at build time via -ldflags "-X main.Version=...".
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "bouncer",
	Short: "bouncer is a multi-tenant OAuth2/OIDC authorization server",
}

func init() {
	serveCmd.Flags().String("hostname", "", "address to bind (overrides HOSTNAME)")
	serveCmd.Flags().Int("port", 0, "port to listen on (overrides PORT)")
	serveCmd.Flags().String("env", "", "deployment environment (overrides ENV)")
	for _, name := range []string{"hostname", "port", "env"} {
		if err := viper.BindPFlag(name, serveCmd.Flags().Lookup(name)); err != nil {
			fmt.Fprintf(os.Stderr, "bind flag %s: %v\n", name, err)
			os.Exit(1)
		}
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(routesCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the server version",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println(Version)
	},
}

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "List every route the server registers, for deployment smoke-checks",
	RunE: func(_ *cobra.Command, _ []string) error {
		engine := httpserver.New(httpserver.Deps{
			Store:  entity.NewStore(),
			Signer: mustInertSigner(),
		})
		for _, r := range engine.Routes() {
			fmt.Printf("%-7s %s\n", r.Method, r.Path)
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the authorization server",
	RunE:  runServe,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// mustInertSigner builds a Signer good enough to assemble routes for the
// `routes` subcommand, which never signs anything for real.
func mustInertSigner() *signer.Signer {
	s, err := signer.New([]byte("routes-command-placeholder"))
	if err != nil {
		panic(err)
	}
	return s
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.FromEnv()
	if v := viper.GetString("hostname"); v != "" {
		cfg.Hostname = v
	}
	if v := viper.GetInt("port"); v != 0 {
		cfg.Port = v
	}
	if v := viper.GetString("env"); v != "" {
		cfg.Env = v
	}

	log, err := logger.NewFromEnv(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracer(ctx, observability.TracerConfig{
		ServiceName:    observability.DefaultServiceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
	}, log)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdownTracing(context.Background()) //nolint:errcheck

	if cfg.JWTSecret == "" {
		log.Warn("JWT_SECRET not set, using an insecure development default")
		cfg.JWTSecret = "development-secret-do-not-use-in-production"
	}
	sgn, err := signer.New([]byte(cfg.JWTSecret))
	if err != nil {
		return fmt.Errorf("build signer: %w", err)
	}

	store := entity.NewStore()
	scripts := scripthost.New(log)
	registry := prometheus.NewRegistry()
	rec := metrics.New(registry)

	codes, err := buildCodeStore(cfg)
	if err != nil {
		return fmt.Errorf("build code store: %w", err)
	}
	if closer, ok := codes.(interface{ Close() }); ok {
		defer closer.Close()
	}

	tmplLoader, err := buildTemplateLoader(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build template loader: %w", err)
	}

	fileSource, err := buildFileSource(cfg, log)
	if err != nil {
		return fmt.Errorf("build file source: %w", err)
	}

	cpSource, err := buildControlPlaneSource(cfg, log)
	if err != nil {
		return fmt.Errorf("build control-plane source: %w", err)
	}
	var cpSourceIface loader.Source
	if cpSource != nil {
		cpSourceIface = cpSource
	}

	// SyncEntityCounts keeps the control-plane back-reporting gauges live,
	// per spec §4.K(b); every tenant/client mutation re-derives both from
	// the store rather than incrementing/decrementing in step with Added/
	// Removed, so a missed event can never drift the gauge permanently.
	store.OnChange(func(entity.Event) { rec.SyncEntityCounts(store) })

	// Per-tenant template override sync (spec §4.J) only applies when the
	// server's primary template source is the local view root; when
	// S3_TEMPLATE_BUCKET names one shared bucket for every tenant, a
	// tenant's Templates override has nowhere of its own to land.
	if cfg.TemplateBucket == "" {
		syncer, err := buildTemplateSyncer(ctx, cfg, log)
		if err != nil {
			return fmt.Errorf("build template syncer: %w", err)
		}
		store.OnChange(func(ev entity.Event) { syncer.HandleEvent(ctx, ev, store) })
	}

	if cpSource != nil {
		rec.OnStatus(func(clientID string, status metrics.Status) {
			if err := cpSource.UpdateClientStatus(ctx, clientID, status.Healthy, status.Message); err != nil {
				log.Warn("update client status", zap.String("client", clientID), zap.Error(err))
			}
		})
	}

	deps := httpserver.Deps{
		Store:      store,
		Signer:     sgn,
		Codes:      codes,
		Scripts:    scripts,
		Metrics:    rec,
		Templates:  tmplLoader,
		Logger:     log,
		Registerer: registry,

		FileSource:         fileSource,
		ControlPlaneSource: cpSourceIface,
	}
	httpserver.Version = Version

	engine := httpserver.New(deps)
	addr := fmt.Sprintf("%s:%d", cfg.Hostname, cfg.Port)

	log.Info("starting bouncer",
		zap.String("addr", addr),
		zap.String("env", cfg.Env),
		zap.Bool("kubernetes_crd", cfg.SupportKubernetesCRD))

	return httpserver.Run(ctx, addr, engine, deps, log)
}

func buildCodeStore(cfg config.Config) (codestore.Store, error) {
	if cfg.RedisHost == "" {
		return memory.New(memory.DefaultSweepInterval), nil
	}
	return redisstore.New(redisstore.Config{
		Host:     cfg.RedisHost,
		Password: cfg.RedisPassword,
	}), nil
}

func buildTemplateLoader(ctx context.Context, cfg config.Config) (*templates.Loader, error) {
	if cfg.TemplateBucket == "" {
		return templates.New(fsstore.New(cfg.ViewRoot)), nil
	}
	client, err := awsS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return templates.New(s3store.New(client, cfg.TemplateBucket, cfg.TemplatePrefix)), nil
}

// buildTemplateSyncer wires up the per-tenant template override sync (spec
// §4.J): it reads each tenant's own Templates.Bucket/Prefix, so it needs an
// S3 client of its own even when the server's primary template source is
// the local view root.
func buildTemplateSyncer(ctx context.Context, cfg config.Config, log *zap.Logger) (*templatesync.Syncer, error) {
	client, err := awsS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return templatesync.New(client, fsstore.New(cfg.ViewRoot), log), nil
}

func awsS3Client(ctx context.Context, cfg config.Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
	if cfg.AWSAccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return s3.NewFromConfig(awsCfg), nil
}

func buildFileSource(cfg config.Config, log *zap.Logger) (loader.Source, error) {
	if cfg.SupportKubernetesCRD {
		return nil, nil
	}
	if cfg.ResourcesRoot == "" {
		return nil, nil
	}
	if _, err := os.Stat(cfg.ResourcesRoot); err != nil {
		log.Warn("resources root missing, skipping file source", zap.String("root", cfg.ResourcesRoot))
		return nil, nil
	}
	return file.New(cfg.ResourcesRoot, log)
}

func buildControlPlaneSource(cfg config.Config, log *zap.Logger) (*controlplane.Source, error) {
	if !cfg.SupportKubernetesCRD {
		return nil, nil
	}
	dyn, err := kubernetesDynamicClient()
	if err != nil {
		return nil, fmt.Errorf("build kubernetes client: %w", err)
	}
	namespace := ""
	if cfg.ScopedKubernetesCRD {
		namespace = cfg.Namespace
	}
	return controlplane.New(dyn, namespace, log)
}

// kubernetesDynamicClient tries an in-cluster config first, then falls back
// to the local kubeconfig, grounded on stacklok-toolhive's
// cmd/thv-registry-api/app/serve.go getKubernetesConfig.
func kubernetesDynamicClient() (dynamic.Interface, error) {
	restCfg, err := rest.InClusterConfig()
	if err != nil {
		loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
		overrides := &clientcmd.ConfigOverrides{}
		restCfg, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, overrides).ClientConfig()
		if err != nil {
			return nil, err
		}
	}
	return dynamic.NewForConfig(restCfg)
}
