package remote

import (
	"context"
	"time"

	"github.com/mailnotify/mailnotify/internal/config"
	"github.com/mailnotify/mailnotify/internal/logging"
	"github.com/mailnotify/mailnotify/internal/mailer"
	"github.com/mailnotify/mailnotify/internal/metrics"
)

// Service executes remote commands against the option store and the
// configured mail connections.
type Service struct {
	cfg     *config.Config
	store   config.Store
	senders mailer.Factory
	now     func() time.Time
}

// NewService returns a Service using the default mail sender factory.
func NewService(cfg *config.Config, store config.Store) *Service {
	return &Service{cfg: cfg, store: store, senders: mailer.ForConnection, now: time.Now}
}

// SetSenderFactory replaces how connection senders are built.
func (s *Service) SetSenderFactory(f mailer.Factory) {
	if f != nil {
		s.senders = f
	}
}

// Execute runs the command in post and returns the information map. Requests
// without the signature, and unknown actions, get info back untouched.
func (s *Service) Execute(ctx context.Context, post, info map[string]any) map[string]any {
	if info == nil {
		info = map[string]any{}
	}
	if !Signed(post, s.cfg.RemoteSignature) {
		return info
	}
	cmd, ok := ParseCommand(post)
	if !ok {
		logging.Get().Debug().Msg("remote request without a known action")
		return info
	}
	log := logging.Get().With().Str("action", cmd.Action()).Logger()
	switch c := cmd.(type) {
	case Ping:
		info["status"], info["pong"] = "ok", 1
	case GetSnapshot:
		snap, err := s.Snapshot(ctx)
		if err != nil {
			log.Error().Err(err).Msg("snapshot failed")
			return fail(info, err.Error())
		}
		info["status"], info["snapshot"] = "ok", snap
	case TestEmail:
		s.testEmail(ctx, c, info)
	case UpdateNotify:
		s.updateNotify(ctx, c, info)
	}
	log.Info().Interface("status", info["status"]).Msg("remote action handled")
	return info
}

// Snapshot reports connections, the notification options and dispatch
// statistics.
func (s *Service) Snapshot(ctx context.Context) (map[string]any, error) {
	opts, err := config.LoadOptions(ctx, s.store)
	if err != nil {
		metrics.IncStoreError()
		return nil, err
	}
	conns := make(map[string]config.Connection, len(s.cfg.Connections))
	for _, c := range s.cfg.Connections {
		conns[c.ID] = c
	}
	activated := 0
	if len(conns) > 0 {
		activated = 1
	}
	return map[string]any{
		"activated":      activated,
		"default_id":     s.cfg.DefaultConnectionID,
		"connections":    conns,
		"notify_active":  1,
		"notify_options": opts,
		"stats":          metrics.GetSnapshot(),
	}, nil
}

func (s *Service) testEmail(ctx context.Context, c TestEmail, info map[string]any) {
	if c.ID == "" || c.To == "" {
		fail(info, "Missing/invalid parameters.")
		return
	}
	conn, ok := s.cfg.Connection(c.ID)
	if !ok {
		fail(info, "Unknown connection ID.")
		return
	}
	msg := mailer.TestMessage(conn, c.To, c.From, mailer.TestInfo{
		SiteName: s.cfg.SiteName,
		SiteURL:  s.cfg.SiteURL,
		Timezone: s.cfg.Timezone,
		Now:      s.now().In(s.cfg.Location()),
	})
	sender, err := s.senders(ctx, conn)
	if err == nil {
		err = sender.Send(ctx, msg)
	}
	logging.Get().Info().Str("connection", c.ID).Str("to", c.To).Bool("sent", err == nil).Msg("test email")
	if err != nil {
		fail(info, "Mail delivery failed: "+err.Error())
		return
	}
	info["status"] = "sent"
	info["details"] = map[string]any{
		"used_connection_id": c.ID,
		"used_from_email":    msg.From,
		"used_from_name":     msg.FromName,
		"connection_type":    conn.Type,
		"connection_title":   conn.Title,
	}
}

func (s *Service) updateNotify(ctx context.Context, c UpdateNotify, info map[string]any) {
	cur, err := config.LoadOptions(ctx, s.store)
	if err != nil {
		metrics.IncStoreError()
		fail(info, err.Error())
		return
	}
	next, updated, errs := config.Sanitize(c.Options, cur)
	if err := config.SaveOptions(ctx, s.store, next); err != nil {
		metrics.IncStoreError()
		fail(info, err.Error())
		return
	}
	if updated == nil {
		updated = []string{}
	}
	info["status"], info["updated"] = "ok", updated
	if len(errs) > 0 {
		info["errors"] = errs
	}
}

func fail(info map[string]any, msg string) map[string]any {
	info["status"], info["message"] = "error", msg
	return info
}
