// Package server is the public composition root for the OCPP simulator
// process: it wires the process-wide cache, registry, control-plane
// endpoint, audit trail and metrics, and exposes LaunchStation to bring up
// individual simulated charge points from a Template.
package server

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ocppsim/simulator/internal/atg"
	"github.com/ocppsim/simulator/internal/auditstore"
	"github.com/ocppsim/simulator/internal/authchain"
	"github.com/ocppsim/simulator/internal/cache"
	"github.com/ocppsim/simulator/internal/config"
	"github.com/ocppsim/simulator/internal/configkeys"
	"github.com/ocppsim/simulator/internal/controlplane"
	"github.com/ocppsim/simulator/internal/localstore"
	"github.com/ocppsim/simulator/internal/registry"
	"github.com/ocppsim/simulator/internal/session"
	"github.com/ocppsim/simulator/internal/station"
	"github.com/ocppsim/simulator/internal/telemetry"
	"github.com/ocppsim/simulator/internal/variables"
	"github.com/ocppsim/simulator/pkg/contracts"
	"github.com/ocppsim/simulator/pkg/models"
)

// Server holds every process-wide collaborator: the station registry, the
// template/configuration cache, the control-plane HTTP/WebSocket endpoint,
// and the command audit trail.
type Server struct {
	Config       *config.Config
	Cache        *cache.Store
	Registry     *registry.Registry
	ControlPlane *controlplane.Server
	Audit        contracts.AuditDriver
	Metrics      *telemetry.Metrics

	templates localstore.TemplateFileLoader
	idTags    localstore.IDTagFileLoader
	cfgStore  *localstore.ConfigurationFileStore

	shutdownTelemetry func(context.Context) error
	log               zerolog.Logger
}

// New wires every process-wide collaborator from cfg. The returned Server
// has no stations registered yet; call LaunchStation per charge point.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	logger := log.Logger

	shutdownTelemetry, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	promReg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(promReg)

	cacheStore, err := cache.New(cfg.Cache.Size, logger)
	if err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}
	cacheStore.StartSweep(cfg.Cache.SweepInterval)

	audit, err := buildAuditDriver(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init audit driver: %w", err)
	}

	reg := registry.New(logger, metrics)
	cp := controlplane.New(reg, audit, logger, metrics)

	return &Server{
		Config:       cfg,
		Cache:        cacheStore,
		Registry:     reg,
		ControlPlane: cp,
		Audit:        audit,
		Metrics:      metrics,
		templates:    localstore.NewTemplateFileLoader(),
		idTags:       localstore.NewIDTagFileLoader(),
		cfgStore:     localstore.NewConfigurationFileStore(""),
		shutdownTelemetry: shutdownTelemetry,
		log:          logger,
	}, nil
}

// buildAuditDriver returns a local JSONL driver, or a pgx-backed Postgres
// driver when DATABASE_URL is configured (SPEC_FULL.md supplemented
// feature 4). A Postgres connection failure falls back to local so the
// audit trail never blocks station simulation from starting.
func buildAuditDriver(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (contracts.AuditDriver, error) {
	local := auditstore.NewLocalFileDriver("", 1000, logger)
	if cfg.Database.URL == "" {
		return local, nil
	}
	pg, err := auditstore.NewPostgresDriver(ctx, cfg.Database.URL)
	if err != nil {
		logger.Warn().Err(err).Msg("postgres audit driver unavailable, falling back to local")
		return local, nil
	}
	logger.Info().Msg("postgres audit driver connected")
	return pg, nil
}

// LaunchOptions parameterizes one simulated charge point (§6).
type LaunchOptions struct {
	TemplatePath     string
	Index            int
	SupervisionURL   string // overrides the template's SupervisionURLs when set
	IDTagPoolPath    string // optional external id-tag list file, feeds the ATG
	LocalListPath    string // optional external id-tag list file, seeds the LocalList strategy
	StrictCompliance bool
}

// LaunchStation loads (and caches) the Template at opts.TemplatePath, builds
// a Station/Session/ATG generator for it, and registers it with the
// registry. The caller is responsible for calling Start on the result.
func (s *Server) LaunchStation(ctx context.Context, opts LaunchOptions) (*registry.Entry, error) {
	tpl, err := s.templates.LoadTemplate(opts.TemplatePath)
	if err != nil {
		return nil, err
	}
	hash, err := cache.HashTemplate(tpl)
	if err != nil {
		return nil, fmt.Errorf("hash template: %w", err)
	}
	if cached, ok := s.Cache.GetTemplate(hash); ok {
		tpl = cached
	} else if _, err := s.Cache.PutTemplate(tpl); err != nil {
		return nil, fmt.Errorf("cache template: %w", err)
	}

	hashID := fmt.Sprintf("%s-%03d", tpl.BaseName, opts.Index)

	supervisionURL := opts.SupervisionURL
	if supervisionURL == "" && len(tpl.SupervisionURLs) > 0 {
		supervisionURL = tpl.SupervisionURLs[opts.Index%len(tpl.SupervisionURLs)]
	}

	info := &models.Station{
		HashID:       hashID,
		TemplateName: tpl.BaseName,
		Index:        opts.Index,
		State:        models.StationStopped,
		Info: models.StationInfo{
			HashID:               hashID,
			ChargePointModel:     tpl.BaseName,
			ChargePointVendor:    "ocppsim",
			FirmwareVersion:      "1.0.0",
			ChargeBoxSerialNumber: hashID,
			SupervisionURL:       supervisionURL,
			OCPPVersion:          tpl.OCPPVersion,
			OCPPStrictCompliance: opts.StrictCompliance,
			MaxPower:             tpl.MaxPower,
			NominalVoltage:       tpl.NominalVoltage,
			NumberOfPhases:       tpl.NumberOfPhases,
		},
		Connectors: make(map[int]*models.ConnectorState, len(tpl.Connectors)),
	}
	for _, c := range tpl.Connectors {
		info.Connectors[c.ConnectorID] = &models.ConnectorState{
			ConnectorID:   c.ConnectorID,
			Availability:  models.AvailabilityOperative,
			Status:        models.StatusAvailable,
			MeasurandList: c.MeasurandList,
			PowerDivider:  c.PowerDivider,
		}
	}

	if persisted, err := s.cfgStore.Load(ctx, hashID); err != nil {
		s.log.Warn().Err(err).Str("hashId", hashID).Msg("load persisted configuration failed")
	} else if persisted != nil {
		applyPersistedConfiguration(info, persisted)
	}

	varRegistry := variables.NewRegistry()
	varRegistry.SeedDefaults(variables.DefaultLimits)
	varManager := variables.NewManager(varRegistry, variables.DefaultLimits)
	cfgKeys := configkeys.NewStore()

	idTagPool, err := s.loadIDTagPool(opts)
	if err != nil {
		return nil, err
	}

	st := station.New(info, varManager, cfgKeys, station.Deps{Events: s.Registry.EventsChan()}, s.log)

	sessCfg := session.Config{
		MessageTimeout:    s.Config.Session.DefaultMessageTimeout,
		ReconnectBase:     s.Config.Session.ReconnectBaseDelay,
		ReconnectMaxRetry: s.Config.Session.ReconnectMaxRetries,
		Exponential:       s.Config.Session.ReconnectExponential,
	}
	header := map[string][]string{}
	if info.Info.BasicAuthUser != "" {
		header["Authorization"] = []string{basicAuthHeader(info.Info.BasicAuthUser, info.Info.BasicAuthPassword)}
	}
	sess := session.New(supervisionURL, header, sessCfg, st.BootHook, st.HandleServerCall, s.log)
	st.AttachSession(sess)

	authChain := authchain.NewChain()
	cacheStrategy := authchain.NewCacheStrategy()
	cacheStrategy.SetEnabled(true)
	s.Cache.RegisterSweeper(cacheStrategy)
	localList, err := s.buildLocalListStrategy(opts)
	if err != nil {
		return nil, err
	}
	authChain.RegisterStrategy(localList)
	authChain.RegisterStrategy(cacheStrategy)
	authChain.RegisterStrategy(authchain.NewRemoteStrategy(sess))
	st.SetAuthChain(authChain)

	var gen *atg.Generator
	if tpl.ATG.Enable {
		hooks := atg.Hooks{
			Authorize: func(ctx context.Context, idTag string) (bool, error) {
				result, err := sess.SendAuthorize(ctx, hashID, models.UnifiedIdentifier{Type: models.IdentifierIDTag, Value: idTag, OCPPVersion: tpl.OCPPVersion})
				if err != nil {
					return false, err
				}
				return result.Accepted(), nil
			},
			StartTransaction: func(ctx context.Context, connectorID int, idTag string) (bool, error) {
				return true, st.RemoteStartForControlPlane(ctx, connectorID, idTag)
			},
			StopTransaction: func(ctx context.Context, connectorID int) error {
				return st.StopTransactionOnConnector(ctx, connectorID, models.StopReasonLocal)
			},
			Connected: sess.Online,
		}
		gen = atg.New(atg.FromTemplate(tpl.ATG, idTagPool), hooks, s.log, s.Metrics)
	}

	s.Registry.Register(hashID, st, gen)
	return s.Registry.Get(hashID), nil
}

func (s *Server) loadIDTagPool(opts LaunchOptions) ([]string, error) {
	if opts.IDTagPoolPath == "" {
		return nil, nil
	}
	tags, err := s.idTags.LoadIDTagList(opts.IDTagPoolPath)
	if err != nil {
		return nil, err
	}
	pool := make([]string, len(tags))
	for i, t := range tags {
		pool[i] = t.Value
	}
	return pool, nil
}

// buildLocalListStrategy seeds a LocalListStrategy from opts.LocalListPath,
// treating every entry in the file as ACCEPTED (§4.5 priority 10). Returns a
// disabled, empty strategy when no path is configured.
func (s *Server) buildLocalListStrategy(opts LaunchOptions) (*authchain.LocalListStrategy, error) {
	strategy := authchain.NewLocalListStrategy()
	if opts.LocalListPath == "" {
		return strategy, nil
	}
	entries, err := s.idTags.LoadIDTagList(opts.LocalListPath)
	if err != nil {
		return nil, fmt.Errorf("load local list: %w", err)
	}
	for _, e := range entries {
		strategy.Put(e.Value, models.AuthAccepted, e.ParentID, nil)
	}
	strategy.SetEnabled(true)
	return strategy, nil
}

func applyPersistedConfiguration(info *models.Station, cfg *models.ChargingStationConfiguration) {
	info.ConfigurationKeys = cfg.ConfigurationKeys
	info.VariableAttributes = cfg.VariableAttributes
	info.ConfigurationHash = cfg.ConfigurationHash
	for _, cs := range cfg.ConnectorsStatus {
		if existing, ok := info.Connectors[cs.ConnectorID]; ok {
			existing.EnergyRegisterWh = cs.EnergyRegisterWh
			existing.Status = cs.Status
			existing.Availability = cs.Availability
		}
	}
}

func basicAuthHeader(user, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+password))
}

// Shutdown stops every registered station, the cache sweep, and flushes
// telemetry. Intended for graceful process shutdown.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Registry.StopAll(ctx, models.StopReasonRemote)
	s.Cache.Stop(ctx)
	if s.shutdownTelemetry != nil {
		return s.shutdownTelemetry(ctx)
	}
	return nil
}
