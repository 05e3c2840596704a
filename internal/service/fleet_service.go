package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/fleet-bridge/internal/gateway"
	"github.com/fleet-bridge/internal/models"
	"github.com/fleet-bridge/internal/queue"
	"github.com/fleet-bridge/pkg/crypto"
	"github.com/fleet-bridge/pkg/keygen"
	"github.com/google/uuid"
)

var (
	ErrValidation      = errors.New("invalid registration input")
	ErrExecutorOffline = errors.New("executor is offline")
	ErrOpenPositions   = errors.New("executor has open positions")
	ErrInvalidPlatform = errors.New("platform must be MT4 or MT5")
	ErrInvalidSecret   = errors.New("invalid api key or secret")
)

// ExecutorStore is the persistence surface the fleet service needs
// for executor records.
type ExecutorStore interface {
	Create(executor *models.Executor) error
	GetByID(id string) (*models.Executor, error)
	GetByAPIKey(apiKey string) (*models.Executor, error)
	GetAll() ([]models.Executor, error)
	GetByStatus(status models.ExecutorState) ([]models.Executor, error)
	UpdateStatus(id string, status models.ExecutorState) error
	UpdateHeartbeat(id string, at time.Time) error
	SoftDelete(id string) error
}

// TradeStore exposes the trade history queries the fleet service needs
type TradeStore interface {
	GetOpenByExecutor(executorID string) ([]models.Trade, error)
	CountOpenByExecutor(executorID string) (int64, error)
	CountByExecutor(executorID string) (int64, error)
	CountProfitableByExecutor(executorID string) (int64, error)
}

// CommandStore persists trade commands and their delivery timestamps
type CommandStore interface {
	Create(cmd *models.TradeCommand) error
	GetExecuted(executorID string) ([]models.TradeCommand, error)
	CountPendingByExecutor(executorID string) (int64, error)
	UpdateStatus(id string, status models.CommandStatus) error
}

// AuditStore records state-changing operations
type AuditStore interface {
	Create(entry *models.AuditLog) error
	ListByExecutor(executorID string, page, pageSize int) ([]models.AuditLog, int64, error)
}

// FleetService orchestrates executor identity, liveness, command
// dispatch and disconnection safety checks. It owns the in-memory
// status cache and the delivery queue; the gateway's connected set is
// the ground truth the cache is reconciled against.
type FleetService struct {
	executors ExecutorStore
	trades    TradeStore
	commands  CommandStore
	audits    AuditStore
	gw        gateway.Gateway
	q         *queue.RetryQueue[models.TradeCommand]
	alerts    *AlertService

	maxAttempts int

	cache   map[string]models.ExecutorState
	cacheMu sync.RWMutex

	started bool
	startMu sync.Mutex
}

// NewFleetService creates a FleetService with explicitly injected
// dependencies. Call Start before use.
func NewFleetService(
	executors ExecutorStore,
	trades TradeStore,
	commands CommandStore,
	audits AuditStore,
	gw gateway.Gateway,
	q *queue.RetryQueue[models.TradeCommand],
	alerts *AlertService,
	maxAttempts int,
) *FleetService {
	s := &FleetService{
		executors:   executors,
		trades:      trades,
		commands:    commands,
		audits:      audits,
		gw:          gw,
		q:           q,
		alerts:      alerts,
		maxAttempts: maxAttempts,
		cache:       make(map[string]models.ExecutorState),
	}

	q.OnDeadLetter = s.onDeadLetter
	q.OnEvict = s.onEvict
	return s
}

// Start primes the status cache from the persisted fleet
func (s *FleetService) Start() error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	executors, err := s.executors.GetAll()
	if err != nil {
		return fmt.Errorf("failed to load fleet: %w", err)
	}

	s.cacheMu.Lock()
	for _, e := range executors {
		s.cache[e.ID] = e.Status
	}
	s.cacheMu.Unlock()

	s.started = true
	log.Printf("[Fleet] Started with %d registered executors", len(executors))
	return nil
}

// Stop marks the service stopped. Workers and snapshot persistence
// are owned by the caller.
func (s *FleetService) Stop() {
	s.startMu.Lock()
	s.started = false
	s.startMu.Unlock()
	log.Printf("[Fleet] Stopped")
}

// Queue exposes the delivery queue to the dispatch worker
func (s *FleetService) Queue() *queue.RetryQueue[models.TradeCommand] {
	return s.q
}

// RegisterExecutorRequest represents the register request
type RegisterExecutorRequest struct {
	Name          string          `json:"name" binding:"required,min=1,max=100"`
	Platform      models.Platform `json:"platform" binding:"required,oneof=MT4 MT5"`
	Broker        string          `json:"broker"`
	AccountNumber string          `json:"account_number"`
	Capabilities  string          `json:"capabilities"`
}

// Register creates an executor record with freshly issued credentials.
// Only the salted hash of the secret is persisted; the plaintext is
// returned exactly once and cannot be recovered afterward. Either the
// full record and credentials exist, or nothing does.
func (s *FleetService) Register(userID uint, req *RegisterExecutorRequest) (*models.RegisterResponse, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if req.Platform != models.PlatformMT4 && req.Platform != models.PlatformMT5 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPlatform, req.Platform)
	}

	creds, err := keygen.GenerateCredentials()
	if err != nil {
		return nil, fmt.Errorf("failed to generate credentials: %w", err)
	}

	secretHash, err := crypto.HashSecret(creds.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to hash secret: %w", err)
	}

	executor := &models.Executor{
		ID:            uuid.New().String(),
		UserID:        userID,
		Name:          req.Name,
		Platform:      req.Platform,
		APIKey:        creds.APIKey,
		APISecretHash: secretHash,
		Status:        models.ExecutorOffline,
		Broker:        req.Broker,
		AccountNumber: req.AccountNumber,
		Capabilities:  req.Capabilities,
	}

	if err := s.executors.Create(executor); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	s.cacheMu.Lock()
	s.cache[executor.ID] = models.ExecutorOffline
	s.cacheMu.Unlock()

	s.audit(executor.ID, models.AuditActionRegister, models.AuditInfo,
		fmt.Sprintf("executor %q registered on %s", executor.Name, executor.Platform))
	log.Printf("[Fleet] Registered executor %s (%s)", executor.ID, executor.Name)

	return &models.RegisterResponse{
		Executor:  executor,
		APIKey:    creds.APIKey,
		SecretKey: models.NewPlainSecret(creds.APISecret),
	}, nil
}

// Authenticate verifies executor agent credentials and returns the
// executor id. Used by the gateway on connection upgrade.
func (s *FleetService) Authenticate(apiKey, apiSecret string) (string, error) {
	executor, err := s.executors.GetByAPIKey(apiKey)
	if err != nil {
		return "", ErrInvalidSecret
	}
	if !crypto.CheckSecret(apiSecret, executor.APISecretHash) {
		return "", ErrInvalidSecret
	}
	return executor.ID, nil
}

// GetStatus computes the derived status view for one executor. The
// online flag always comes from the gateway's live set; the metrics
// scan the full trade and command history on every call.
func (s *FleetService) GetStatus(executorID string) (*models.ExecutorStatus, error) {
	executor, err := s.executors.GetByID(executorID)
	if err != nil {
		return nil, err
	}

	status := &models.ExecutorStatus{
		ExecutorID:    executor.ID,
		Name:          executor.Name,
		Platform:      executor.Platform,
		IsOnline:      s.gw.IsConnected(executorID),
		LastHeartbeat: executor.LastHeartbeat,
	}

	if status.OpenPositions, err = s.trades.CountOpenByExecutor(executorID); err != nil {
		return nil, err
	}
	if status.PendingCommands, err = s.commands.CountPendingByExecutor(executorID); err != nil {
		return nil, err
	}
	if status.TotalTrades, err = s.trades.CountByExecutor(executorID); err != nil {
		return nil, err
	}

	if status.TotalTrades > 0 {
		profitable, err := s.trades.CountProfitableByExecutor(executorID)
		if err != nil {
			return nil, err
		}
		status.SuccessRate = float64(profitable) / float64(status.TotalTrades)
	}

	executed, err := s.commands.GetExecuted(executorID)
	if err != nil {
		return nil, err
	}
	if len(executed) > 0 {
		var totalMs float64
		for _, cmd := range executed {
			totalMs += float64(cmd.ExecutedAt.Sub(*cmd.AcknowledgedAt).Milliseconds())
		}
		status.AverageLatency = totalMs / float64(len(executed))
	}

	return status, nil
}

// SendCommand accepts a command into the delivery pipeline. The target
// must be live per the gateway right now; commands are never durably
// queued for an executor known to be offline at call time. A true
// return means "accepted", not "delivered": the queue is the durable
// path and the direct push only a latency optimization.
func (s *FleetService) SendCommand(executorID string, cmd *models.TradeCommand) (bool, error) {
	if _, err := s.executors.GetByID(executorID); err != nil {
		return false, err
	}

	if !s.gw.IsConnected(executorID) {
		log.Printf("[Fleet] Rejected command for offline executor %s", executorID)
		return false, ErrExecutorOffline
	}

	s.prepare(executorID, cmd)
	return s.accept(cmd)
}

// accept persists the command, queues it durably, and attempts an
// immediate best-effort push. Push failure never rolls back the queue;
// push success retires the queued copy so the dispatch worker cannot
// deliver the same command a second time.
func (s *FleetService) accept(cmd *models.TradeCommand) (bool, error) {
	if err := s.commands.Create(cmd); err != nil {
		return false, fmt.Errorf("failed to persist command: %w", err)
	}

	itemID, err := s.q.Enqueue(*cmd, int(cmd.Priority), s.maxAttempts)
	if err != nil {
		return false, err
	}

	if s.gw.SendCommand(cmd.ExecutorID, cmd) {
		s.q.RemoveByID(itemID)
		if err := s.commands.UpdateStatus(cmd.ID, models.CommandStatusSent); err != nil {
			log.Printf("[Fleet] Failed to mark command %s sent: %v", cmd.ID, err)
		}
		s.audit(cmd.ExecutorID, models.AuditActionCommandSent, models.AuditInfo,
			fmt.Sprintf("command %s (%s) delivered directly", cmd.ID, cmd.Type))
		log.Printf("[Fleet] Command %s accepted for %s (sent immediately)", cmd.ID, cmd.ExecutorID)
	} else {
		log.Printf("[Fleet] Command %s accepted for %s (queued)", cmd.ID, cmd.ExecutorID)
	}
	return true, nil
}

// prepare fills in generated fields on a freshly built command
func (s *FleetService) prepare(executorID string, cmd *models.TradeCommand) {
	if cmd.ID == "" {
		cmd.ID = uuid.New().String()
	}
	cmd.ExecutorID = executorID
	if cmd.Priority == 0 {
		cmd.Priority = models.PriorityNormal
	}
	if cmd.Status == "" {
		cmd.Status = models.CommandStatusPending
	}
	if cmd.CreatedAt.IsZero() {
		cmd.CreatedAt = time.Now()
	}
}

// BroadcastCommand clones the command once per currently connected
// executor and dispatches sequentially. Not transactional: an executor
// disconnecting mid-broadcast yields partial delivery.
func (s *FleetService) BroadcastCommand(cmd *models.TradeCommand) int {
	delivered := 0
	for _, executorID := range s.gw.ConnectedExecutors() {
		clone := *cmd
		clone.ID = ""
		s.prepare(executorID, &clone)

		accepted, err := s.SendCommand(executorID, &clone)
		if err != nil && !errors.Is(err, ErrExecutorOffline) {
			log.Printf("[Fleet] Broadcast to %s failed: %v", executorID, err)
			continue
		}
		if accepted {
			delivered++
		}
	}
	log.Printf("[Fleet] Broadcast %s command to %d executors", cmd.Type, delivered)
	return delivered
}

// HandleDisconnection marks an executor offline and runs the safety
// check: a disconnect while open positions exist is safety-critical
// and always produces exactly one CRITICAL audit entry plus an alert
// dispatch. This path never silently no-ops on open risk.
func (s *FleetService) HandleDisconnection(executorID string) {
	if err := s.executors.UpdateStatus(executorID, models.ExecutorOffline); err != nil {
		log.Printf("[Fleet] Failed to persist offline status for %s: %v", executorID, err)
	}

	s.cacheMu.Lock()
	s.cache[executorID] = models.ExecutorOffline
	s.cacheMu.Unlock()

	open, err := s.trades.GetOpenByExecutor(executorID)
	if err != nil {
		log.Printf("[Fleet] Could not verify open positions for disconnected executor %s: %v", executorID, err)
		s.alerts.Dispatch(string(models.AuditCritical),
			"Executor disconnected",
			fmt.Sprintf("executor %s disconnected; open-position check failed: %v", executorID, err))
		return
	}

	if len(open) == 0 {
		log.Printf("[Fleet] Executor %s disconnected with no open positions", executorID)
		s.audit(executorID, models.AuditActionDisconnect, models.AuditInfo, "disconnected, no open positions")
		return
	}

	detail := fmt.Sprintf("disconnected with %d open position(s) unattended", len(open))
	log.Printf("[Fleet] CRITICAL: executor %s %s", executorID, detail)
	s.audit(executorID, models.AuditActionDisconnect, models.AuditCritical, detail)
	s.alerts.Dispatch(string(models.AuditCritical), "Executor disconnected with open risk",
		fmt.Sprintf("executor %s %s", executorID, detail))
}

// MarkOnline records an executor's transition back to online
func (s *FleetService) MarkOnline(executorID string) {
	if err := s.executors.UpdateStatus(executorID, models.ExecutorOnline); err != nil {
		log.Printf("[Fleet] Failed to persist online status for %s: %v", executorID, err)
	}

	s.cacheMu.Lock()
	s.cache[executorID] = models.ExecutorOnline
	s.cacheMu.Unlock()

	s.audit(executorID, models.AuditActionStatusChange, models.AuditInfo, "reconnected")
	log.Printf("[Fleet] Executor %s is online", executorID)
}

// RecordHeartbeat stamps a heartbeat received through the gateway
func (s *FleetService) RecordHeartbeat(hb gateway.Heartbeat) {
	at := time.Now()
	if hb.Timestamp > 0 {
		at = time.UnixMilli(hb.Timestamp)
	}
	if err := s.executors.UpdateHeartbeat(hb.ExecutorID, at); err != nil {
		log.Printf("[Fleet] Failed to record heartbeat for %s: %v", hb.ExecutorID, err)
	}
}

// CachedStates returns a copy of the in-memory status cache. The
// monitor worker diffs it against the gateway's live set.
func (s *FleetService) CachedStates() map[string]models.ExecutorState {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()

	out := make(map[string]models.ExecutorState, len(s.cache))
	for id, state := range s.cache {
		out[id] = state
	}
	return out
}

// EmergencyStop routes a close-all instruction to one executor at the
// highest priority. Unlike SendCommand it is not gated on current
// connectivity: the command is always durably queued so a stop issued
// during a disconnect flushes on the executor's next reconnect. A live
// push is still attempted when possible.
func (s *FleetService) EmergencyStop(executorID, reason string) error {
	if _, err := s.executors.GetByID(executorID); err != nil {
		return err
	}

	payload, _ := json.Marshal(map[string]string{
		"action": "close_all_positions",
		"reason": reason,
	})

	cmd := &models.TradeCommand{
		Type:     models.CommandEmergencyStop,
		Priority: models.PriorityUrgent,
		Payload:  string(payload),
	}
	s.prepare(executorID, cmd)

	if _, err := s.accept(cmd); err != nil {
		return err
	}

	s.audit(executorID, models.AuditActionEmergencyStop, models.AuditCritical,
		fmt.Sprintf("emergency stop: %s", reason))
	return nil
}

// EmergencyStopAll runs three redundant stop paths: a direct gateway
// broadcast to every live socket, an individual durable EmergencyStop
// per persisted-online executor, and queue-level promotion of every
// pending command for those executors to the urgent tier. All three
// paths run even if one fails.
func (s *FleetService) EmergencyStopAll(reason string) {
	// Path 1: out-of-band broadcast, lowest latency
	s.gw.EmergencyStopAll(reason)

	// Path 2: durable per-executor stops
	stopped := make(map[string]bool)
	online, err := s.executors.GetByStatus(models.ExecutorOnline)
	if err != nil {
		log.Printf("[Fleet] Emergency stop-all: failed to load online executors: %v", err)
	} else {
		for _, executor := range online {
			stopped[executor.ID] = true
			if err := s.EmergencyStop(executor.ID, reason); err != nil {
				log.Printf("[Fleet] Emergency stop for %s failed: %v", executor.ID, err)
			}
		}
	}

	// Path 3: promote everything already queued for those executors
	promoted := s.q.PromoteWhere(func(cmd models.TradeCommand) bool {
		return len(stopped) == 0 || stopped[cmd.ExecutorID]
	}, int(models.PriorityUrgent))
	if promoted > 0 {
		log.Printf("[Fleet] Emergency stop-all: promoted %d queued commands to urgent", promoted)
	}

	s.audit("", models.AuditActionEmergencyAll, models.AuditCritical,
		fmt.Sprintf("fleet-wide emergency stop: %s", reason))
	s.alerts.Dispatch(string(models.AuditCritical), "Fleet-wide emergency stop", reason)
}

// Remove soft-deletes an executor. It fails with ErrOpenPositions if
// any open position exists, counted directly from the store, never
// from the cache: removal must not abandon monitored risk.
func (s *FleetService) Remove(executorID string) error {
	if _, err := s.executors.GetByID(executorID); err != nil {
		return err
	}

	openCount, err := s.trades.CountOpenByExecutor(executorID)
	if err != nil {
		return fmt.Errorf("failed to count open positions: %w", err)
	}
	if openCount > 0 {
		return fmt.Errorf("%w: %d open", ErrOpenPositions, openCount)
	}

	if err := s.executors.SoftDelete(executorID); err != nil {
		return err
	}

	s.cacheMu.Lock()
	delete(s.cache, executorID)
	s.cacheMu.Unlock()

	s.audit(executorID, models.AuditActionRemove, models.AuditInfo, "executor removed")
	log.Printf("[Fleet] Removed executor %s", executorID)
	return nil
}

// GetAllExecutors lists the active fleet
func (s *FleetService) GetAllExecutors() ([]models.Executor, error) {
	return s.executors.GetAll()
}

// AuditTrail returns one page of an executor's audit history, newest
// first, with the total entry count for pagination.
func (s *FleetService) AuditTrail(executorID string, page, pageSize int) ([]models.AuditLog, int64, error) {
	if _, err := s.executors.GetByID(executorID); err != nil {
		return nil, 0, err
	}
	return s.audits.ListByExecutor(executorID, page, pageSize)
}

func (s *FleetService) onDeadLetter(item queue.Item[models.TradeCommand]) {
	cmd := item.Payload
	log.Printf("[Fleet] Command %s for %s dead-lettered after %d attempts", cmd.ID, cmd.ExecutorID, item.Attempts)

	if err := s.commands.UpdateStatus(cmd.ID, models.CommandStatusFailed); err != nil {
		log.Printf("[Fleet] Failed to mark dead-lettered command %s: %v", cmd.ID, err)
	}
	s.audit(cmd.ExecutorID, models.AuditActionCommandDead, models.AuditWarning,
		fmt.Sprintf("command %s (%s) dropped after %d attempts", cmd.ID, cmd.Type, item.Attempts))
}

func (s *FleetService) onEvict(item queue.Item[models.TradeCommand]) {
	cmd := item.Payload
	log.Printf("[Fleet] Command %s for %s evicted from full queue", cmd.ID, cmd.ExecutorID)
	s.audit(cmd.ExecutorID, models.AuditActionQueueEvicted, models.AuditWarning,
		fmt.Sprintf("command %s (%s, priority %d) evicted on overflow", cmd.ID, cmd.Type, item.Priority))
}

func (s *FleetService) audit(executorID, action string, severity models.AuditSeverity, detail string) {
	entry := &models.AuditLog{
		ExecutorID: executorID,
		Action:     action,
		Severity:   severity,
		Detail:     detail,
	}
	if err := s.audits.Create(entry); err != nil {
		log.Printf("[Fleet] Failed to write audit entry %s: %v", action, err)
	}
}
