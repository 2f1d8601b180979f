package services

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benchlane/benchlane-engine/pkg/config"
	"github.com/benchlane/benchlane-engine/pkg/database"
	"github.com/benchlane/benchlane-engine/pkg/models"
)

// minRequirementBodyRunes is the minimum body length treated as a
// requirement posting rather than an empty cover note.
const minRequirementBodyRunes = 50

// EmailPoller watches an IMAP mailbox and feeds ingestion: message bodies
// become requirement ingress, whitelisted attachments become resume uploads.
// Messages are flagged seen only after every enqueue succeeds, so a crash
// re-delivers on the next poll and the content hashes dedupe the replay.
type EmailPoller struct {
	cfg         *config.IMAPConfig
	tenantID    uuid.UUID
	resumes     ResumeIngestionService
	requirement RequirementIngestionService
	scopes      *database.TenantScopeProvider
	logger      *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEmailPoller creates an EmailPoller. Returns an error when enabled
// without a valid tenant binding.
func NewEmailPoller(
	cfg *config.IMAPConfig,
	resumes ResumeIngestionService,
	requirement RequirementIngestionService,
	scopes *database.TenantScopeProvider,
	logger *zap.Logger,
) (*EmailPoller, error) {
	poller := &EmailPoller{
		cfg:         cfg,
		resumes:     resumes,
		requirement: requirement,
		scopes:      scopes,
		logger:      logger.Named("email-poller"),
	}
	if cfg.Enabled {
		tenantID, err := uuid.Parse(cfg.TenantID)
		if err != nil {
			return nil, fmt.Errorf("imap tenant_id must be a UUID: %w", err)
		}
		poller.tenantID = tenantID
	}
	return poller, nil
}

// Start launches the polling loop. No-op when the adapter is disabled.
func (p *EmailPoller) Start(ctx context.Context) {
	if !p.cfg.Enabled {
		p.logger.Info("Email polling disabled")
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.run(ctx)
	p.logger.Info("Email polling started",
		zap.String("host", p.cfg.Host),
		zap.String("mailbox", p.cfg.Mailbox),
		zap.Duration("interval", p.cfg.PollInterval))
}

// Stop halts polling and waits for an in-flight poll to finish.
func (p *EmailPoller) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	p.wg.Wait()
}

func (p *EmailPoller) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.poll(ctx); err != nil {
				// Connection problems heal on the next tick.
				p.logger.Warn("Mailbox poll failed", zap.Error(err))
			}
		}
	}
}

func (p *EmailPoller) poll(ctx context.Context) error {
	conn, err := p.dial()
	if err != nil {
		return fmt.Errorf("dial imap: %w", err)
	}
	defer conn.Logout() //nolint:errcheck // best-effort teardown

	if err := conn.Login(p.cfg.Username, p.cfg.Password); err != nil {
		return fmt.Errorf("imap login: %w", err)
	}
	if _, err := conn.Select(p.cfg.Mailbox, false); err != nil {
		return fmt.Errorf("select mailbox %q: %w", p.cfg.Mailbox, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	ids, err := conn.Search(criteria)
	if err != nil {
		return fmt.Errorf("search unseen: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	section := &imap.BodySectionName{}
	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	messages := make(chan *imap.Message, len(ids))
	fetchDone := make(chan error, 1)
	go func() {
		fetchDone <- conn.Fetch(seqset, []imap.FetchItem{section.FetchItem(), imap.FetchUid}, messages)
	}()

	scoped, cleanup, err := p.scopes.WithTenantScope(ctx, p.tenantID)
	if err != nil {
		return fmt.Errorf("acquire tenant scope: %w", err)
	}
	defer cleanup()
	scoped = models.WithActor(scoped, models.ActorContext{Source: models.SourceEmail})

	processed := new(imap.SeqSet)
	for msg := range messages {
		if err := p.handleMessage(scoped, msg.GetBody(section)); err != nil {
			p.logger.Warn("Failed to process message, leaving unseen",
				zap.Uint32("seq", msg.SeqNum),
				zap.Error(err))
			continue
		}
		processed.AddNum(msg.SeqNum)
	}
	if err := <-fetchDone; err != nil {
		return fmt.Errorf("fetch messages: %w", err)
	}

	if !processed.Empty() {
		item := imap.FormatFlagsOp(imap.AddFlags, true)
		if err := conn.Store(processed, item, []interface{}{imap.SeenFlag}, nil); err != nil {
			return fmt.Errorf("flag messages seen: %w", err)
		}
	}
	return nil
}

func (p *EmailPoller) dial() (*client.Client, error) {
	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)
	if p.cfg.TLS {
		return client.DialTLS(addr, nil)
	}
	return client.Dial(addr)
}

// handleMessage enqueues the message's content: a sufficiently long body is
// requirement ingress, whitelisted attachments are resume uploads. Duplicate
// content is absorbed by the ingestion dedupe.
func (p *EmailPoller) handleMessage(ctx context.Context, body io.Reader) error {
	if body == nil {
		return fmt.Errorf("message has no body section")
	}
	reader, err := mail.CreateReader(body)
	if err != nil {
		return fmt.Errorf("parse message: %w", err)
	}

	var textBody strings.Builder
	type attachment struct {
		fileName    string
		contentType string
		data        []byte
	}
	var attachments []attachment

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read message part: %w", err)
		}

		switch header := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := header.ContentType()
			if contentType == "" || strings.HasPrefix(contentType, "text/plain") {
				data, err := io.ReadAll(part.Body)
				if err != nil {
					return fmt.Errorf("read message body: %w", err)
				}
				textBody.Write(data)
			}
		case *mail.AttachmentHeader:
			contentType, _, _ := header.ContentType()
			if !p.whitelisted(contentType) {
				continue
			}
			fileName, _ := header.Filename()
			data, err := io.ReadAll(part.Body)
			if err != nil {
				return fmt.Errorf("read attachment: %w", err)
			}
			attachments = append(attachments, attachment{
				fileName:    fileName,
				contentType: contentType,
				data:        data,
			})
		}
	}

	text := strings.TrimSpace(textBody.String())
	if len([]rune(text)) >= minRequirementBodyRunes {
		if _, err := p.requirement.Ingest(ctx, models.SourceEmail, text); err != nil {
			return fmt.Errorf("ingest requirement from email: %w", err)
		}
	}

	for _, att := range attachments {
		upload := &ResumeUpload{
			FileName:    att.fileName,
			ContentType: att.contentType,
			Data:        att.data,
			Source:      models.SourceEmail,
		}
		if _, err := p.resumes.Upload(ctx, upload); err != nil {
			return fmt.Errorf("upload attachment %q: %w", att.fileName, err)
		}
	}
	return nil
}

func (p *EmailPoller) whitelisted(contentType string) bool {
	for _, allowed := range p.cfg.AttachmentWhitelist {
		if strings.EqualFold(contentType, allowed) {
			return true
		}
	}
	return false
}
