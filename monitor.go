package callwatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Monitor runs the poll loop: fetch new calls from Bitrix24, transcribe the
// recordings, score them against the script rules and alert to Telegram.
type Monitor struct {
	cfg     Config
	logger  zerolog.Logger
	metrics *Metrics

	bitrix   *BitrixClient
	whisper  *WhisperClient
	telegram *TelegramClient
	rules    RuleSet
	state    *StateStore

	mu           sync.RWMutex
	lastCycle    time.Time
	lastCycleErr string
}

// NewMonitor wires up the clients from config. A broken rules file degrades
// to the built-in defaults so the service still starts.
func NewMonitor(cfg Config, logger zerolog.Logger) *Monitor {
	rules, err := LoadRules(cfg.ScriptRulesFile)
	if err != nil {
		logger.Warn().Err(err).Str("file", cfg.ScriptRulesFile).Msg("rules file unusable, using defaults")
		rules = DefaultRules()
	}

	return &Monitor{
		cfg:      cfg,
		logger:   logger,
		metrics:  NewMetrics(),
		bitrix:   NewBitrixClient(cfg.BitrixWebhookBase, cfg.HTTPTimeout, logger),
		whisper:  NewWhisperClient(cfg.OpenAIAPIKey, cfg.LanguageHint, cfg.HTTPTimeout, logger),
		telegram: NewTelegramClient(cfg.TelegramBotToken, cfg.TelegramChatID, cfg.HTTPTimeout, logger),
		rules:    rules,
		state:    NewStateStore(cfg.StateFile),
	}
}

// Metrics returns the monitor's metrics collector.
func (m *Monitor) Metrics() *Metrics { return m.metrics }

// Run executes one cycle immediately, then one per poll interval until the
// context is canceled.
func (m *Monitor) Run(ctx context.Context) {
	m.logger.Info().Dur("interval", m.cfg.PollInterval).Msg("monitor started")

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	m.runCycle(ctx)
	for {
		select {
		case <-ticker.C:
			m.runCycle(ctx)
		case <-ctx.Done():
			m.logger.Info().Msg("monitor stopped")
			return
		}
	}
}

func (m *Monitor) runCycle(ctx context.Context) {
	ctx, span := otel.Tracer("callwatch").Start(ctx, "poll-cycle")
	defer span.End()

	m.metrics.RecordCycle()
	cycleErr := ""
	defer func() {
		m.mu.Lock()
		m.lastCycle = time.Now()
		m.lastCycleErr = cycleErr
		m.mu.Unlock()
	}()

	if missing := m.cfg.MissingSecrets(); len(missing) > 0 {
		m.logger.Warn().Strs("missing", missing).Msg("skipping cycle, missing secrets")
		m.metrics.RecordCycleSkipped()
		cycleErr = fmt.Sprintf("missing secrets: %v", missing)
		return
	}

	st, err := m.state.Load()
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to load state")
		cycleErr = err.Error()
		return
	}

	calls, err := m.bitrix.LatestCalls(ctx, m.cfg.LimitLast)
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to fetch calls")
		cycleErr = err.Error()
		return
	}
	m.metrics.RecordCallsFetched(len(calls))
	span.SetAttributes(attribute.Int("calls.fetched", len(calls)))

	for _, call := range calls {
		if call.CallID == st.LastSeenCallID {
			m.metrics.RecordCallSkipped()
			continue
		}

		if err := m.processCall(ctx, call); err != nil {
			m.logger.Error().Err(err).Str("callID", call.CallID).Msg("call processing failed")
			if sendErr := m.telegram.SendMessage(ctx, BuildErrorCard(call.CallID, err)); sendErr != nil {
				m.logger.Error().Err(sendErr).Str("callID", call.CallID).Msg("error card delivery failed")
			}
			continue
		}

		st.LastSeenCallID = call.CallID
		if err := m.state.Save(st); err != nil {
			m.logger.Error().Err(err).Msg("failed to save state")
		}
	}
}

func (m *Monitor) processCall(ctx context.Context, call CallRecord) error {
	ctx, span := otel.Tracer("callwatch").Start(ctx, "process-call")
	defer span.End()
	span.SetAttributes(attribute.String("call.id", call.CallID))

	audio, err := m.bitrix.DownloadRecording(ctx, call.RecordURL)
	if err != nil {
		return fmt.Errorf("download %s: %w", call.CallID, err)
	}

	transcript, err := m.whisper.Transcribe(ctx, audio, call.CallID+".mp3")
	if err != nil {
		m.metrics.RecordTranscriptionFailure()
		return fmt.Errorf("transcribe %s: %w", call.CallID, err)
	}

	name := m.bitrix.EntityName(ctx, call.EntityType, call.EntityID)
	link := m.bitrix.EntityLink(call.EntityType, call.EntityID, call.ActivityID)
	eval := m.rules.Evaluate(transcript)

	m.logger.Info().
		Str("callID", call.CallID).
		Str("name", name).
		Bool("compliant", eval.Compliant).
		Int("transcriptChars", len([]rune(transcript))).
		Msg("call analyzed")

	if err := m.telegram.SendMessage(ctx, BuildAlertCard(call, name, link, eval)); err != nil {
		m.metrics.RecordAlertFailure()
		return fmt.Errorf("alert %s: %w", call.CallID, err)
	}
	m.metrics.RecordAlertSent()
	m.metrics.RecordCallProcessed()
	return nil
}

// MonitorStatus is the introspection report served on /internal/status.
type MonitorStatus struct {
	PollIntervalSeconds int                `json:"poll_interval_seconds"`
	SecretsComplete     bool               `json:"secrets_complete"`
	MissingSecrets      []string           `json:"missing_secrets,omitempty"`
	LastCycle           time.Time          `json:"last_cycle"`
	LastCycleError      string             `json:"last_cycle_error,omitempty"`
	LastSeenCallID      string             `json:"last_seen_call_id,omitempty"`
	RecentDeliveries    []TelegramDelivery `json:"recent_deliveries,omitempty"`
}

// Status reports the monitor's current condition.
func (m *Monitor) Status() MonitorStatus {
	m.mu.RLock()
	lastCycle := m.lastCycle
	lastErr := m.lastCycleErr
	m.mu.RUnlock()

	missing := m.cfg.MissingSecrets()
	st, _ := m.state.Load()

	return MonitorStatus{
		PollIntervalSeconds: int(m.cfg.PollInterval.Seconds()),
		SecretsComplete:     len(missing) == 0,
		MissingSecrets:      missing,
		LastCycle:           lastCycle,
		LastCycleError:      lastErr,
		LastSeenCallID:      st.LastSeenCallID,
		RecentDeliveries:    m.telegram.RecentDeliveries(),
	}
}
