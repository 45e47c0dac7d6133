package slackindex

import (
	"context"
	"fmt"
	"strings"
	"time"

	goslack "github.com/slack-go/slack"

	"github.com/qdrant/go-client/qdrant"

	"github.com/opsdata-io/gateway/errs"
	"github.com/opsdata-io/gateway/llm"
	"github.com/opsdata-io/gateway/model"
	"github.com/opsdata-io/gateway/obs"
)

const (
	pageLimit       = 100
	perChannelCap   = 1000
	pagePause       = 500 * time.Millisecond
	embedBatchSize  = 50
	defaultHistDays = 90
)

// WorkspaceConfig identifies the Slack workspace a run targets.
type WorkspaceConfig struct {
	WorkspaceID string
	BotToken    string
	HistoryDays int
	ForceFull   bool
}

func (c WorkspaceConfig) collection() string {
	return "slack_messages_" + c.WorkspaceID
}

// Stats summarizes one ProcessWorkspace run, mirroring what the original
// indexer returns to its scheduler for logging (spec §4.7).
type Stats struct {
	TotalMessages   int
	IndexedMessages int
	OldestTS        float64
	NewestTS        float64
}

// Indexer runs the per-workspace state machine and per-channel paging
// algorithm against a shared Qdrant collection-per-workspace layout.
type Indexer struct {
	qdrant *qdrant.Client
	llmc   llm.Client
	store  *Store
	log    func(msg string, args ...any)

	// newSlackClient is a seam for tests to avoid a real Slack handshake.
	newSlackClient func(token string) *goslack.Client
}

func NewIndexer(qc *qdrant.Client, client llm.Client, store *Store) *Indexer {
	if store == nil {
		store = NewStore()
	}
	return &Indexer{
		qdrant: qc,
		llmc:   client,
		store:  store,
		log:    obs.Component("slackindex").Info,
		newSlackClient: func(token string) *goslack.Client {
			return goslack.New(token)
		},
	}
}

// ProcessWorkspace drives one full IDLE->RUNNING->FINALIZING->IDLE cycle
// (spec §4.7). It returns (Stats{}, nil) without error when another run
// already holds a live lease: that is a no-op, not a failure.
func (ix *Indexer) ProcessWorkspace(ctx context.Context, cfg WorkspaceConfig) (Stats, error) {
	if !ix.store.TryAcquire(cfg.WorkspaceID) {
		return Stats{}, nil
	}

	historyDays := cfg.HistoryDays
	if historyDays <= 0 {
		historyDays = defaultHistDays
	}
	cutoff := time.Now().Add(-time.Duration(historyDays) * 24 * time.Hour)

	if err := ix.ensureCollection(ctx, cfg.collection()); err != nil {
		ix.store.Abort(cfg.WorkspaceID)
		return Stats{}, err
	}

	client := ix.newSlackClient(cfg.BotToken)
	channels, err := ix.listChannels(ctx, client)
	if err != nil {
		ix.store.Abort(cfg.WorkspaceID)
		return Stats{}, err
	}

	var stats Stats
	for _, ch := range channels {
		chTotal, chIndexed, chOldest, chNewest, err := ix.processChannel(ctx, client, cfg, ch, cutoff)
		if err != nil {
			ix.log("channel indexing failed, continuing with next channel", "channel", ch.Name, "error", err)
			continue
		}
		stats.TotalMessages += chTotal
		stats.IndexedMessages += chIndexed
		if chOldest > 0 && (stats.OldestTS == 0 || chOldest < stats.OldestTS) {
			stats.OldestTS = chOldest
		}
		if chNewest > stats.NewestTS {
			stats.NewestTS = chNewest
		}
		ix.store.Touch(cfg.WorkspaceID)
	}

	if err := ix.pruneOlderThan(ctx, cfg.collection(), cutoff); err != nil {
		ix.log("pruning failed", "collection", cfg.collection(), "error", err)
	} else {
		ix.log("pruned points older than cutoff", "collection", cfg.collection(), "cutoff", cutoff)
	}

	ix.store.Finalize(cfg.WorkspaceID, stats.TotalMessages, stats.IndexedMessages, stats.OldestTS, stats.NewestTS)
	return stats, nil
}

func (ix *Indexer) listChannels(ctx context.Context, client *goslack.Client) ([]goslack.Channel, error) {
	var out []goslack.Channel
	params := &goslack.GetConversationsParameters{Limit: 1000, Types: []string{"public_channel", "private_channel"}}
	for {
		channels, cursor, err := client.GetConversationsContext(ctx, params)
		if err != nil {
			return nil, errs.New(errs.BackendUnreachable, "failed listing slack channels", err)
		}
		out = append(out, channels...)
		if cursor == "" {
			break
		}
		params.Cursor = cursor
	}
	return out, nil
}

// processChannel implements the per-channel algorithm of spec §4.7:
// page history at 100/page up to a 1000-message ceiling, filter by
// cutoff, embed surviving text in batches of 50, and upsert with a
// timestamp-derived id so re-runs overwrite rather than duplicate.
func (ix *Indexer) processChannel(ctx context.Context, client *goslack.Client, cfg WorkspaceConfig, ch goslack.Channel, cutoff time.Time) (total, indexed int, oldestTS, newestTS float64, err error) {
	prior := ix.store.Channel(cfg.WorkspaceID, ch.ID, ch.Name)
	cutoffTS := float64(cutoff.Unix())

	var messages []goslack.Message
	params := &goslack.GetConversationHistoryParameters{ChannelID: ch.ID, Limit: pageLimit}
	if !cfg.ForceFull && prior.LastIndexedTS > 0 {
		params.Oldest = fmt.Sprintf("%f", prior.LastIndexedTS)
	}

	for {
		hist, herr := client.GetConversationHistoryContext(ctx, params)
		if herr != nil {
			return total, indexed, oldestTS, newestTS, errs.New(errs.BackendUnreachable, "failed fetching slack channel history", herr)
		}

		for _, msg := range hist.Messages {
			ts := parseSlackTS(msg.Timestamp)
			if ts < cutoffTS {
				continue
			}
			messages = append(messages, msg)
			if oldestTS == 0 || ts < oldestTS {
				oldestTS = ts
			}
			if ts > newestTS {
				newestTS = ts
			}
		}

		if !hist.HasMore || hist.ResponseMetaData.NextCursor == "" || len(messages) >= perChannelCap {
			break
		}
		params.Cursor = hist.ResponseMetaData.NextCursor

		select {
		case <-ctx.Done():
			return total, indexed, oldestTS, newestTS, ctx.Err()
		case <-time.After(pagePause):
		}
	}

	total = len(messages)
	if total == 0 {
		return 0, 0, oldestTS, newestTS, nil
	}

	indexed, err = ix.indexMessages(ctx, cfg, ch, messages)
	if err != nil {
		return total, indexed, oldestTS, newestTS, err
	}

	if newestTS > 0 {
		ix.store.UpdateChannel(cfg.WorkspaceID, ChannelState{
			ChannelID:     ch.ID,
			ChannelName:   ch.Name,
			LastIndexedTS: newestTS,
			MessageCount:  prior.MessageCount + indexed,
		})
	}
	return total, indexed, oldestTS, newestTS, nil
}

func parseSlackTS(ts string) float64 {
	var whole, frac int64
	_, err := fmt.Sscanf(ts, "%d.%d", &whole, &frac)
	if err != nil {
		return 0
	}
	return float64(whole) + float64(frac)/1e6
}

// indexMessages embeds surviving messages in batches of embedBatchSize
// and upserts them with ids derived from the message timestamp so that
// re-indexing the same window overwrites rather than duplicates (spec
// §4.7 step 4).
func (ix *Indexer) indexMessages(ctx context.Context, cfg WorkspaceConfig, ch goslack.Channel, messages []goslack.Message) (int, error) {
	type pending struct {
		text    string
		payload map[string]any
		id      uint64
	}
	var batch []pending

	for _, msg := range messages {
		if strings.TrimSpace(msg.Text) == "" {
			continue
		}
		text := msg.Text
		for _, att := range msg.Attachments {
			if att.Text != "" {
				text += "\n" + att.Text
			}
		}
		ts := parseSlackTS(msg.Timestamp)
		batch = append(batch, pending{
			text: text,
			id:   uint64(ts*1e6) + uint64(len(batch)),
			payload: map[string]any{
				"ts":              ts,
				"text":            msg.Text,
				"user_id":         msg.User,
				"channel_id":      ch.ID,
				"channel_name":    ch.Name,
				"has_attachments": len(msg.Attachments) > 0,
				"has_files":       len(msg.Files) > 0,
				"datetime":        time.Unix(int64(ts), 0).UTC().Format(time.RFC3339),
				"thread_ts":       msg.ThreadTimestamp,
				"reply_count":     msg.ReplyCount,
			},
		})
	}

	var indexed int
	for start := 0; start < len(batch); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(batch) {
			end = len(batch)
		}
		chunk := batch[start:end]

		points := make([]*qdrant.PointStruct, 0, len(chunk))
		for _, item := range chunk {
			vec, err := ix.llmc.Embed(ctx, item.text)
			if err != nil {
				ix.log("embedding failed for message, skipping", "channel", ch.Name, "error", err)
				continue
			}
			payload := make(map[string]*qdrant.Value, len(item.payload))
			for k, v := range item.payload {
				val, verr := qdrant.NewValue(v)
				if verr != nil {
					continue
				}
				payload[k] = val
			}
			points = append(points, &qdrant.PointStruct{
				Id:      &qdrant.PointId{PointIdOptions: &qdrant.PointId_Num{Num: item.id}},
				Vectors: qdrant.NewVectors(vec...),
				Payload: payload,
			})
		}
		if len(points) == 0 {
			continue
		}

		_, err := ix.qdrant.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: cfg.collection(),
			Points:         points,
		})
		if err != nil {
			return indexed, errs.New(errs.BackendUnreachable, "failed upserting slack message batch", err)
		}
		indexed += len(points)
	}

	return indexed, nil
}

func (ix *Indexer) ensureCollection(ctx context.Context, collection string) error {
	exists, err := ix.qdrant.CollectionExists(ctx, collection)
	if err != nil {
		return errs.New(errs.BackendUnreachable, "failed checking slack collection existence", err)
	}
	if exists {
		return nil
	}
	dim := ix.llmc.EmbeddingDimension()
	if dim <= 0 {
		dim = 384
	}
	err = ix.qdrant.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return errs.New(errs.BackendUnreachable, "failed creating slack collection", err)
	}
	return nil
}

// pruneOlderThan deletes every point with ts < cutoff from the
// workspace's collection (spec §4.7: "After all channels processed,
// delete points with ts < cutoff from the vector store").
func (ix *Indexer) pruneOlderThan(ctx context.Context, collection string, cutoff time.Time) error {
	cutoffTS := float64(cutoff.Unix())
	_, err := ix.qdrant.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{
					Must: []*qdrant.Condition{
						{
							ConditionOneOf: &qdrant.Condition_Field{
								Field: &qdrant.FieldCondition{
									Key:   "ts",
									Range: &qdrant.Range{Lt: &cutoffTS},
								},
							},
						},
					},
				},
			},
		},
	})
	if err != nil {
		return errs.New(errs.BackendUnreachable, "failed pruning stale slack points", err)
	}
	return nil
}

// SemanticSearch implements adapter.SemanticSearcher: embed the query,
// run a cosine search scoped to the workspace's collection with an
// optional channel/user filter conjunction (spec §4.7 "Search (read
// path)").
func (ix *Indexer) SemanticSearch(ctx context.Context, workspaceID, query string, topK int) ([]model.Row, error) {
	return ix.SemanticSearchFiltered(ctx, workspaceID, query, topK, nil, nil, time.Time{}, time.Time{})
}

// SemanticSearchFiltered is the full read-path signature from spec §4.7:
// semantic_search(query, limit, channels?, users?, date_from?, date_to?).
func (ix *Indexer) SemanticSearchFiltered(ctx context.Context, workspaceID, query string, topK int, channels, users []string, dateFrom, dateTo time.Time) ([]model.Row, error) {
	vec, err := ix.llmc.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 20
	}
	limit := uint64(topK)

	var must []*qdrant.Condition
	must = append(must, matchAnyCondition("channel_id", channels)...)
	must = append(must, matchAnyCondition("user_id", users)...)
	if !dateFrom.IsZero() || !dateTo.IsZero() {
		r := &qdrant.Range{}
		if !dateFrom.IsZero() {
			v := float64(dateFrom.Unix())
			r.Gte = &v
		}
		if !dateTo.IsZero() {
			v := float64(dateTo.Unix())
			r.Lte = &v
		}
		must = append(must, &qdrant.Condition{ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{Key: "ts", Range: r},
		}})
	}

	req := &qdrant.QueryPoints{
		CollectionName: "slack_messages_" + workspaceID,
		Query:          qdrant.NewQuery(vec...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(must) > 0 {
		req.Filter = &qdrant.Filter{Must: must}
	}

	points, err := ix.qdrant.Query(ctx, req)
	if err != nil {
		return nil, errs.New(errs.BackendUnreachable, "slack semantic search failed", err)
	}

	out := make([]model.Row, 0, len(points))
	for _, p := range points {
		row := model.Row{"score": p.Score}
		for k, v := range p.Payload {
			row[k] = v.String()
		}
		out = append(out, row)
	}
	return out, nil
}

func matchAnyCondition(key string, values []string) []*qdrant.Condition {
	var out []*qdrant.Condition
	for _, v := range values {
		if v == "" {
			continue
		}
		out = append(out, &qdrant.Condition{ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: v}},
			},
		}})
	}
	return out
}
