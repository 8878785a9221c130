package dedup

import (
	"context"
	"log/slog"

	"curator/internal/archive"
	"curator/internal/logging"
	"curator/internal/queue"
	"curator/internal/services"
	"curator/internal/tagnorm"
)

// PublishRequest is the final content and metadata for one job, ready for
// the archive.
type PublishRequest struct {
	Files          []archive.CreateRequest
	Tags           []string
	Safety         queue.Safety
	SafetyOverride bool
}

// Outcome reports what the archive ended up holding for the job.
type Outcome struct {
	// PublishedID is the archive item for the job's primary (first) file.
	PublishedID int64
	// WasMerge is true when the primary file matched an existing item.
	WasMerge bool
	// RelatedIDs lists every other item in the group, siblings and merge
	// targets alike.
	RelatedIDs []int64
	// TagsApplied is the final tag set on the primary item.
	TagsApplied []string
	// Safety is the rating the primary item carries after reconciliation.
	Safety queue.Safety
}

// Engine runs the duplicate check and merge policy for each produced file.
type Engine struct {
	publisher     archive.Publisher
	fingerprinter Fingerprinter
	logger        *slog.Logger
}

// NewEngine builds the merge engine. A nil fingerprinter defaults to exact
// content hashing.
func NewEngine(publisher archive.Publisher, fingerprinter Fingerprinter, logger *slog.Logger) *Engine {
	if fingerprinter == nil {
		fingerprinter = SHA256Fingerprinter{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{
		publisher:     publisher,
		fingerprinter: fingerprinter,
		logger:        logger.With(logging.String(logging.FieldComponent, "dedup")),
	}
}

type fileOutcome struct {
	itemID   int64
	wasMerge bool
	tags     []string
	safety   queue.Safety
}

// Publish resolves every file in the request through the duplicate check,
// links the resulting group bidirectionally, and reports the job-level
// outcome. Each file is resolved independently; the first file is the
// primary.
func (e *Engine) Publish(ctx context.Context, owner string, req PublishRequest) (*Outcome, error) {
	if len(req.Files) == 0 {
		return nil, services.Wrap(services.ErrValidation, "uploading", "publish", "no files to publish", nil)
	}

	tags := tagnorm.NormalizeAll(req.Tags)
	outcomes := make([]fileOutcome, 0, len(req.Files))
	for _, file := range req.Files {
		resolved, err := e.resolveFile(ctx, owner, file, tags, req.Safety, req.SafetyOverride)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, resolved)
	}

	ids := make([]int64, len(outcomes))
	for i, out := range outcomes {
		ids[i] = out.itemID
	}
	if err := e.linkGroup(ctx, owner, ids); err != nil {
		return nil, err
	}

	primary := outcomes[0]
	related := make([]int64, 0, len(ids)-1)
	for _, id := range ids[1:] {
		if id != primary.itemID {
			related = append(related, id)
		}
	}
	return &Outcome{
		PublishedID: primary.itemID,
		WasMerge:    primary.wasMerge,
		RelatedIDs:  related,
		TagsApplied: primary.tags,
		Safety:      primary.safety,
	}, nil
}

func (e *Engine) resolveFile(ctx context.Context, owner string, file archive.CreateRequest, tags []string, safety queue.Safety, safetyOverride bool) (fileOutcome, error) {
	fingerprint := file.Fingerprint
	if fingerprint == "" {
		var err error
		fingerprint, err = e.fingerprinter.Fingerprint(file.FilePath)
		if err != nil {
			return fileOutcome{}, err
		}
	}

	existing, err := e.publisher.FindByFingerprint(ctx, owner, fingerprint)
	if err != nil {
		return fileOutcome{}, err
	}

	if existing == nil {
		file.Fingerprint = fingerprint
		file.Tags = tags
		file.Safety = safety
		created, err := e.publisher.Create(ctx, owner, file)
		if err != nil {
			return fileOutcome{}, err
		}
		e.logger.Info("item created",
			logging.Int64("item_id", created.ID),
			logging.String("fingerprint", fingerprint))
		return fileOutcome{itemID: created.ID, tags: created.Tags, safety: created.Safety}, nil
	}

	mergedTags := tagnorm.Union(existing.Tags, tags)
	mergedSafety := queue.MoreRestrictive(existing.Safety, safety)
	if safetyOverride {
		mergedSafety = safety
	}
	updated, err := e.publisher.Update(ctx, owner, existing.ID, archive.UpdateRequest{
		Tags:   mergedTags,
		Safety: mergedSafety,
	})
	if err != nil {
		return fileOutcome{}, err
	}
	e.logger.Info("item merged",
		logging.Int64("item_id", existing.ID),
		logging.String("fingerprint", fingerprint))
	return fileOutcome{itemID: updated.ID, wasMerge: true, tags: updated.Tags, safety: updated.Safety}, nil
}

// linkGroup relates every pair of distinct items so following any one item
// surfaces all siblings.
func (e *Engine) linkGroup(ctx context.Context, owner string, ids []int64) error {
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if ids[i] == ids[j] {
				continue
			}
			if err := e.publisher.Relate(ctx, owner, ids[i], ids[j]); err != nil {
				return err
			}
		}
	}
	return nil
}
