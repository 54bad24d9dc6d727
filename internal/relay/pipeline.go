package relay

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"go.flowcatalyst.tech/internal/cache"
	"go.flowcatalyst.tech/internal/codec"
	"go.flowcatalyst.tech/internal/discovery"
	"go.flowcatalyst.tech/internal/gateway"
	"go.flowcatalyst.tech/internal/queue"
	"go.flowcatalyst.tech/internal/role"
	"go.flowcatalyst.tech/internal/telemetry"
)

// Config parameterizes one pipeline instance.
type Config struct {
	MaxSendAttempts        int
	WarnLimit              int
	DropLimit              int
	CachePeriod            time.Duration
	StatsPeriod            time.Duration
	HandleUnexpectedWrites bool
	LastUpdateTable        string
	LastUpdateColumn       string
}

// QueryExecutor is the subset of *gateway.RunGateway the pipeline needs,
// narrowed to an interface so tests can substitute a fake.
type QueryExecutor interface {
	ExecuteRead(ctx context.Context, query string) ([]gateway.Row, error)
	ExecuteWrite(ctx context.Context, query string) (int64, error)
	BreakerOpen() bool
	LastUpdate(ctx context.Context, table, column string) (time.Time, error)
}

// LogInserter is the subset of *gateway.MonitorGateway the pipeline needs.
type LogInserter interface {
	InsertLog(ctx context.Context, doc gateway.LogDocument) error
}

// Publisher is the subset of *transport.Manager the pipeline needs.
type Publisher interface {
	PublishHeartbeat(data []byte) error
	PublishNegotiation(data []byte) error
	PublishLog(data []byte) error
	Reply(subject string, data []byte) error
}

type inboundFrame struct {
	subject string
	reply   string
	data    []byte
}

// Pipeline drives the bounded request/response iteration described in
// §4.F: discover clients, drain submission/log subjects, execute the
// next write or read, send the next reply and outbound log, broadcast
// presence, and trim.
type Pipeline struct {
	cfg Config

	writeQueue *queue.Keyed[Fingerprint, QueryRecord]
	readQueue  *queue.Keyed[Fingerprint, QueryRecord]
	replyQueue *queue.Keyed[Fingerprint, codec.Reply]
	inLog      *queue.Deque[LogRecord]
	outLog     *queue.Deque[LogRecord]

	replySubjects sync.Map // Fingerprint -> NATS reply subject

	replyRetriesMu sync.Mutex
	replyRetries   map[Fingerprint]int

	store      cache.Store
	run        QueryExecutor
	monitor    LogInserter
	transport  Publisher
	roleCtl    *role.Controller
	discovery  *discovery.Manager
	metrics    *telemetry.Metrics
	stats      *telemetry.Store
	warnings   telemetry.WarningService

	writeCh chan inboundFrame
	readCh  chan inboundFrame
	logCh   chan []byte

	lastSnapshotAt time.Time
	lastExecuted   Kind
}

// New wires a Pipeline against its dependencies. The write and read
// submission channels hold twice DropLimit frames, so a burst that
// overflows a keyed queue still reaches it and is answered with
// StatusQueueFull; a frame arriving while its channel is full is
// counted as dropped and gets no reply. Neither case blocks the NATS
// client's delivery goroutine.
func New(cfg Config, store cache.Store, run QueryExecutor, monitor LogInserter, tp Publisher, roleCtl *role.Controller, disco *discovery.Manager, metrics *telemetry.Metrics, stats *telemetry.Store, warnings telemetry.WarningService) *Pipeline {
	qcfg := queue.Config{WarnLimit: cfg.WarnLimit, DropLimit: cfg.DropLimit, MaxSendAttempts: cfg.MaxSendAttempts}
	return &Pipeline{
		cfg:          cfg,
		writeQueue:   queue.NewKeyed[Fingerprint, QueryRecord](qcfg),
		readQueue:    queue.NewKeyed[Fingerprint, QueryRecord](qcfg),
		replyQueue:   queue.NewKeyed[Fingerprint, codec.Reply](qcfg),
		inLog:        queue.NewDeque[LogRecord](cfg.DropLimit),
		outLog:       queue.NewDeque[LogRecord](cfg.DropLimit),
		replyRetries: make(map[Fingerprint]int),
		store:        store,
		run:          run,
		monitor:      monitor,
		transport:    tp,
		roleCtl:      roleCtl,
		discovery:    disco,
		metrics:      metrics,
		stats:        stats,
		warnings:     warnings,
		writeCh:      make(chan inboundFrame, 2*cfg.DropLimit),
		readCh:       make(chan inboundFrame, 2*cfg.DropLimit),
		logCh:        make(chan []byte, cfg.DropLimit),
	}
}

// EnqueueWrite is the transport.Handlers.OnWriteSubmission callback.
func (p *Pipeline) EnqueueWrite(subject, reply string, data []byte) {
	select {
	case p.writeCh <- inboundFrame{subject: subject, reply: reply, data: data}:
	default:
		p.stats.IncDropped("write")
	}
}

// EnqueueRead is the transport.Handlers.OnReadSubmission callback.
func (p *Pipeline) EnqueueRead(subject, reply string, data []byte) {
	select {
	case p.readCh <- inboundFrame{subject: subject, reply: reply, data: data}:
	default:
		p.stats.IncDropped("read")
	}
}

// EnqueueLog is the transport.Handlers.OnLogSubmission callback.
func (p *Pipeline) EnqueueLog(data []byte) {
	select {
	case p.logCh <- data:
	default:
		p.stats.IncDropped("log")
	}
}

// LastUpdate implements role.LastUpdateFunc by delegating to the run
// gateway, the negotiation tiebreak's durable input.
func (p *Pipeline) LastUpdate(ctx context.Context) (time.Time, error) {
	return p.run.LastUpdate(ctx, p.cfg.LastUpdateTable, p.cfg.LastUpdateColumn)
}

// PublishNegotiation implements role.Callbacks.PublishNegotiation.
func (p *Pipeline) PublishNegotiation(n codec.Negotiation) error {
	return p.transport.PublishNegotiation(codec.EncodeNegotiation(n).Marshal())
}

// Iterate runs exactly one bounded pipeline iteration (§4.F): it applies
// pending discovery events, drains the write, read and log submissions,
// checks peer silence, executes one query and one inbound log record,
// sends one reply and one outbound log record, broadcasts presence when
// due, and trims. Peer heartbeat and negotiation frames are not drained
// here; HandleHeartbeat and HandleNegotiation process them as they are
// delivered.
func (p *Pipeline) Iterate(ctx context.Context) {
	p.discoverClients()
	p.drainWrites()
	p.drainReads()
	p.drainLogs()
	p.roleCtl.CheckSilence()

	p.executeNext(ctx)
	p.executeNextInboundLog(ctx)

	p.sendNextReply()
	p.sendNextOutboundLog()

	if p.roleCtl.ShouldBroadcast() {
		p.broadcastPresence()
	}

	p.trim()
}

// discoverClients applies whatever peer add/remove events the discovery
// adapter queued since the last iteration and logs them. No subscription
// changes follow: a NATS peer is reached through the already-constructed
// subjects rather than a per-peer socket connect.
func (p *Pipeline) discoverClients() {
	if p.discovery == nil {
		return
	}
	for _, ev := range p.discovery.Drain() {
		if ev.Added {
			log.Debug().Str("tag", ev.Tag).Str("peer_id", ev.PeerID).Str("endpoint", ev.Endpoint).Msg("discovery: peer added")
		} else {
			log.Debug().Str("tag", ev.Tag).Str("peer_id", ev.PeerID).Msg("discovery: peer removed")
		}
	}
}

func (p *Pipeline) drainWrites() {
	for {
		select {
		case f := <-p.writeCh:
			p.handleSubmission(f, KindWrite)
		default:
			return
		}
	}
}

func (p *Pipeline) drainReads() {
	for {
		select {
		case f := <-p.readCh:
			p.handleSubmission(f, KindRead)
		default:
			return
		}
	}
}

func (p *Pipeline) handleSubmission(f inboundFrame, kind Kind) {
	frame, err := codec.Unmarshal(f.data)
	if err != nil {
		p.stats.IncReceiveFailed(string(kind))
		log.Warn().Err(err).Str("channel", string(kind)).Msg("pipeline: dropping malformed submission")
		return
	}
	sub, err := codec.DecodeSubmission(frame)
	if err != nil {
		p.stats.IncReceiveFailed(string(kind))
		log.Warn().Err(err).Str("channel", string(kind)).Msg("pipeline: dropping malformed submission")
		return
	}
	p.stats.IncReceived(string(kind))

	fp := Fingerprint{ClientID: sub.ClientID, MsgID: sub.MsgID}
	p.replySubjects.Store(fp, f.reply)

	// A cached success is answered with StatusDuplicate; a cached
	// failure keeps its failure status.
	if cached, ok, _ := p.store.Get(context.Background(), fp.String()); ok {
		p.metrics.CacheHits.Inc()
		if cachedFrame, err := codec.Unmarshal(cached); err == nil {
			if reply, err := codec.DecodeReply(cachedFrame); err == nil {
				if reply.Status == codec.StatusOK {
					reply.Status = codec.StatusDuplicate
				}
				p.enqueueReply(fp, reply)
				return
			}
		}
	}
	p.metrics.CacheMisses.Inc()

	if kind == KindWrite && p.roleCtl.Role() != role.Master {
		p.enqueueReply(fp, codec.Reply{MsgID: sub.MsgID, Status: codec.StatusNotMasterForWrite})
		return
	}

	// Unexpected-writes policy: a write-shaped statement arriving on the
	// read-submission subject is rejected by default; only a master with
	// HandleUnexpectedWrites enabled is allowed to execute it.
	if kind == KindRead && isWriteStatement(sub.SQL) {
		if p.roleCtl.Role() == role.Master && p.cfg.HandleUnexpectedWrites {
			kind = KindWrite
		} else {
			p.enqueueReply(fp, codec.Reply{MsgID: sub.MsgID, Status: codec.StatusNotMasterForWrite})
			return
		}
	}

	rec := QueryRecord{Fingerprint: fp, Kind: kind, SQL: sub.SQL, ArrivedAt: time.Now()}

	var target *queue.Keyed[Fingerprint, QueryRecord]
	if kind == KindWrite {
		target = p.writeQueue
	} else {
		target = p.readQueue
	}

	switch target.Insert(fp, rec) {
	case queue.Full:
		p.metrics.QueueDropped.WithLabelValues(string(kind)).Inc()
		p.enqueueReply(fp, codec.Reply{MsgID: sub.MsgID, Status: codec.StatusQueueFull})
	case queue.Duplicate:
		// A second submission of a fingerprint already pending is not
		// queued again. Its reply subject replaced the earlier one
		// above, so the pending entry's reply is sent once, to this
		// latest submitter; the earlier submitter gets no reply.
	}
}

func (p *Pipeline) drainLogs() {
	for {
		select {
		case data := <-p.logCh:
			p.handleLogSubmission(data)
		default:
			return
		}
	}
}

func (p *Pipeline) handleLogSubmission(data []byte) {
	frame, err := codec.Unmarshal(data)
	if err != nil {
		p.stats.IncReceiveFailed("log")
		log.Warn().Err(err).Msg("pipeline: dropping malformed log submission")
		return
	}
	msg, err := codec.DecodeLogSubmission(frame)
	if err != nil {
		p.stats.IncReceiveFailed("log")
		log.Warn().Err(err).Msg("pipeline: dropping malformed log submission")
		return
	}
	p.stats.IncReceived("log")

	rec := LogRecord{
		ClientID:    msg.ClientID,
		Timestamp:   msg.Timestamp,
		Severity:    msg.Severity,
		Message:     msg.Message,
		ReceiptTime: time.Now(),
	}
	if p.inLog.Push(rec) == queue.Full {
		p.stats.IncDropped("log")
	}
	// The same receiver also feeds the independent outbound log stream,
	// per the supplemented two-queue behavior.
	if p.outLog.Push(rec) == queue.Full {
		p.stats.IncDropped("log")
	}
}

// executeNext picks one query to execute this iteration, tie-breaking
// between the write and read queues per §4.F: round-robin by default
// (alternating off lastExecuted), biased toward write whenever the
// write queue has backlogged past half of WarnLimit. Only master
// relays execute writes; falls back to the other queue if the
// preferred one is empty so an iteration still makes progress.
func (p *Pipeline) executeNext(ctx context.Context) {
	isMaster := p.roleCtl.Role() == role.Master
	writeBacklogged := isMaster && p.writeQueue.Len() > p.cfg.WarnLimit/2
	tryWriteFirst := isMaster && (writeBacklogged || p.lastExecuted != KindWrite)

	if tryWriteFirst {
		if p.executeNextWrite(ctx) {
			p.lastExecuted = KindWrite
			return
		}
	}
	if p.executeNextRead(ctx) {
		p.lastExecuted = KindRead
		return
	}
	if isMaster && !tryWriteFirst {
		if p.executeNextWrite(ctx) {
			p.lastExecuted = KindWrite
		}
	}
}

func (p *Pipeline) executeNextWrite(ctx context.Context) bool {
	fp, rec, ok := p.writeQueue.Pop()
	if !ok {
		return false
	}
	p.execute(ctx, fp, rec)
	return true
}

func (p *Pipeline) executeNextRead(ctx context.Context) bool {
	fp, rec, ok := p.readQueue.Pop()
	if !ok {
		return false
	}
	p.execute(ctx, fp, rec)
	return true
}

// execute runs one query and either caches+sends its reply or, for a
// retryable (db-transient) failure within MaxSendAttempts, re-queues
// rec for another attempt on a later iteration instead of caching the
// failure. Per §7, only success and db-fatal failures are cached;
// db-transient only gets cached once retries are exhausted, so a
// resubmission after the backing database recovers gets a fresh
// execution rather than a stale cached failure.
func (p *Pipeline) execute(ctx context.Context, fp Fingerprint, rec QueryRecord) {
	channel := string(rec.Kind)

	var err error
	if rec.Kind == KindWrite {
		_, err = p.run.ExecuteWrite(ctx, rec.SQL)
	} else {
		_, err = p.run.ExecuteRead(ctx, rec.SQL)
	}

	if err != nil {
		p.stats.IncExecuteFailed(channel)
		p.metrics.QueriesFailed.WithLabelValues(channel).Inc()
		if rec.Kind == KindWrite && p.run.BreakerOpen() {
			p.roleCtl.DemoteForPersistentFailure()
		}

		if gateway.KindOf(err).Retryable() {
			rec.Retries++
			if rec.Retries < p.cfg.MaxSendAttempts {
				p.requeue(fp, rec)
				return
			}
		}
	} else {
		p.stats.IncExecuted(channel)
		p.metrics.QueriesExecuted.WithLabelValues(channel).Inc()
	}

	reply := p.replyFromError(fp.MsgID, err)
	if err := p.store.Put(ctx, fp.String(), codec.EncodeReply(reply).Marshal()); err != nil {
		log.Warn().Err(err).Msg("pipeline: failed to cache reply")
	}
	p.enqueueReply(fp, reply)
}

// requeue re-inserts rec, having bumped its retry count, onto the
// queue it came from. If a resubmission of the same fingerprint
// already refilled the slot in the meantime, the retry is simply
// dropped in favor of that fresher entry.
func (p *Pipeline) requeue(fp Fingerprint, rec QueryRecord) {
	target := p.readQueue
	if rec.Kind == KindWrite {
		target = p.writeQueue
	}
	if target.Insert(fp, rec) == queue.Full {
		p.metrics.QueueDropped.WithLabelValues(string(rec.Kind)).Inc()
	}
}

func (p *Pipeline) replyFromError(msgID uint32, err error) codec.Reply {
	if err == nil {
		return codec.Reply{MsgID: msgID, Status: codec.StatusOK}
	}
	switch gateway.KindOf(err) {
	case gateway.KindSyntax:
		return codec.Reply{MsgID: msgID, Status: codec.StatusSyntaxError}
	default:
		return codec.Reply{MsgID: msgID, Status: codec.StatusQueryFailed}
	}
}

func (p *Pipeline) enqueueReply(fp Fingerprint, reply codec.Reply) {
	if p.replyQueue.Insert(fp, reply) == queue.Full {
		p.metrics.QueueDropped.WithLabelValues("reply").Inc()
	}
}

func (p *Pipeline) executeNextInboundLog(ctx context.Context) {
	rec, ok := p.inLog.Pop()
	if !ok {
		return
	}
	doc := gateway.LogDocument{
		ClientID:    rec.ClientID,
		Message:     rec.Message,
		Severity:    rec.Severity,
		Timestamp:   rec.Timestamp,
		Retries:     rec.Retries,
		ReceiptTime: rec.ReceiptTime,
	}
	if err := p.monitor.InsertLog(ctx, doc); err != nil {
		log.Warn().Err(err).Msg("pipeline: failed to insert inbound log record")
	}
}

func (p *Pipeline) sendNextReply() {
	fp, reply, ok := p.replyQueue.Pop()
	if !ok {
		return
	}
	subjectVal, found := p.replySubjects.LoadAndDelete(fp)
	subject, _ := subjectVal.(string)
	if !found || subject == "" {
		p.clearReplyRetries(fp)
		return
	}

	payload := codec.EncodeReply(reply).Marshal()
	if err := p.transport.Reply(subject, payload); err != nil {
		p.stats.IncSendFailed("reply")
		p.metrics.SendFailures.WithLabelValues("reply").Inc()
		if p.bumpReplyRetries(fp) {
			p.clearReplyRetries(fp)
			p.stats.IncDropped("reply")
			return
		}
		// Retry later: the queue entry and its destination were both
		// removed by Pop/LoadAndDelete above, so both are restored.
		p.replyQueue.Insert(fp, reply)
		p.replySubjects.Store(fp, subject)
		return
	}
	p.clearReplyRetries(fp)
	p.stats.IncSent("reply")
	p.metrics.RepliesSent.WithLabelValues("reply").Inc()
}

// bumpReplyRetries increments fp's failed-send count and reports whether
// it has now reached MaxSendAttempts. The reply queue itself loses this
// count across each Pop/Insert retry cycle, so it is tracked here instead.
func (p *Pipeline) bumpReplyRetries(fp Fingerprint) bool {
	p.replyRetriesMu.Lock()
	defer p.replyRetriesMu.Unlock()
	p.replyRetries[fp]++
	return p.replyRetries[fp] >= p.cfg.MaxSendAttempts
}

func (p *Pipeline) clearReplyRetries(fp Fingerprint) {
	p.replyRetriesMu.Lock()
	defer p.replyRetriesMu.Unlock()
	delete(p.replyRetries, fp)
}

func (p *Pipeline) sendNextOutboundLog() {
	rec, ok := p.outLog.Pop()
	if !ok {
		return
	}
	payload := codec.EncodeLogSubmission(codec.LogSubmission{
		ClientID:  rec.ClientID,
		Timestamp: rec.Timestamp,
		Severity:  rec.Severity,
		Message:   rec.Message,
	}).Marshal()

	if err := p.transport.PublishLog(payload); err != nil {
		p.stats.IncSendFailed("log")
		return
	}
	p.stats.IncSent("log")
}

func (p *Pipeline) broadcastPresence() {
	hb, err := p.roleCtl.BuildHeartbeat()
	if err != nil {
		log.Error().Err(err).Msg("pipeline: failed to build heartbeat")
		return
	}
	if err := p.transport.PublishHeartbeat(codec.EncodeHeartbeat(hb).Marshal()); err != nil {
		p.stats.IncSendFailed("heartbeat")
		return
	}
	p.metrics.HeartbeatsSent.Inc()
	p.stats.IncSent("heartbeat")
}

func (p *Pipeline) trim() {
	evicted := p.writeQueue.Trim() + p.readQueue.Trim() + p.replyQueue.Trim() + p.inLog.Trim() + p.outLog.Trim()
	if evicted > 0 {
		p.stats.IncDropped("trim")
	}
	p.metrics.QueueDepth.WithLabelValues("write").Set(float64(p.writeQueue.Len()))
	p.metrics.QueueDepth.WithLabelValues("read").Set(float64(p.readQueue.Len()))
	p.metrics.QueueDepth.WithLabelValues("reply").Set(float64(p.replyQueue.Len()))
	p.metrics.QueueDepth.WithLabelValues("in_log").Set(float64(p.inLog.Len()))
	p.metrics.QueueDepth.WithLabelValues("out_log").Set(float64(p.outLog.Len()))

	p.maybePublishSnapshot()
}

// HandleHeartbeat decodes a raw heartbeat payload and forwards it to
// the role controller.
func (p *Pipeline) HandleHeartbeat(data []byte) {
	frame, err := codec.Unmarshal(data)
	if err != nil {
		return
	}
	hb, err := codec.DecodeHeartbeat(frame)
	if err != nil {
		return
	}
	p.metrics.HeartbeatsReceived.Inc()
	p.roleCtl.RecordHeartbeat(hb)
}

// HandleNegotiation decodes a raw negotiation payload and forwards it
// to the role controller.
func (p *Pipeline) HandleNegotiation(ctx context.Context) func(data []byte) {
	return func(data []byte) {
		frame, err := codec.Unmarshal(data)
		if err != nil {
			return
		}
		neg, err := codec.DecodeNegotiation(frame)
		if err != nil {
			return
		}
		p.roleCtl.HandleNegotiationFrame(ctx, neg)
	}
}

var writeVerbs = []string{"INSERT", "UPDATE", "DELETE", "CREATE", "DROP", "ALTER", "TRUNCATE"}

// isWriteStatement reports whether sql's leading keyword is a
// write-shaped statement, for the unexpected-writes policy.
func isWriteStatement(sql string) bool {
	trimmed := strings.ToUpper(strings.TrimSpace(sql))
	for _, verb := range writeVerbs {
		if strings.HasPrefix(trimmed, verb) {
			return true
		}
	}
	return false
}

// Snapshot materializes the current telemetry snapshot.
func (p *Pipeline) Snapshot() telemetry.Snapshot {
	return p.stats.Snapshot(string(p.roleCtl.Role()))
}

// maybePublishSnapshot publishes the monitoring snapshot onto the
// log-publication subject once StatsPeriod has elapsed since the last
// publish, per §4.I. A zero StatsPeriod disables publication (the
// /status endpoint still serves Snapshot() on demand).
func (p *Pipeline) maybePublishSnapshot() {
	if p.cfg.StatsPeriod <= 0 {
		return
	}
	now := time.Now()
	if !p.lastSnapshotAt.IsZero() && now.Sub(p.lastSnapshotAt) < p.cfg.StatsPeriod {
		return
	}
	p.lastSnapshotAt = now

	payload, err := json.Marshal(p.Snapshot())
	if err != nil {
		log.Warn().Err(err).Msg("pipeline: failed to marshal monitoring snapshot")
		return
	}
	if err := p.transport.PublishLog(payload); err != nil {
		p.stats.IncSendFailed("snapshot")
		return
	}
	p.stats.IncSent("snapshot")
}

// RecordWarning appends an operational warning, wired as role.Callbacks.OnWarning.
func (p *Pipeline) RecordWarning(message string) {
	if p.warnings != nil {
		p.warnings.AddWarning(telemetry.CategoryRole, telemetry.SeverityWarning, message, "pipeline")
	}
}
