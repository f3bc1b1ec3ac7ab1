package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"faultcore/internal/blob"
	"faultcore/internal/infra/persistence/memory"
	"faultcore/internal/mef"
)

// Object names stored under each run.
const (
	archiveRoot    = "runs"
	inputObject    = "input.json"
	resultsObject  = "results.json"
	modelObject    = "model.xml"
	contentJSON    = "application/json"
	contentMEF     = "application/xml"
	metadataRunID  = "run-id"
	metadataObject = "object"
)

// ErrRunNotFound is returned when an archive holds no object for a run.
var ErrRunNotFound = errors.New("analysis run not found")

// Archive keeps analysis inputs, results and model exports in a blob store,
// grouped by run id. Objects are write-once.
type Archive struct {
	store blob.Store
}

// NewArchive wraps store.
func NewArchive(store blob.Store) *Archive {
	return &Archive{store: store}
}

func runKey(runID, object string) string {
	return path.Join(archiveRoot, runID, object)
}

func (a *Archive) put(ctx context.Context, runID, object, contentType string, data []byte) (blob.Info, error) {
	if runID == "" || strings.ContainsAny(runID, "/\\") {
		return blob.Info{}, fmt.Errorf("archive %s: invalid run id %q", object, runID)
	}
	info, err := a.store.Put(ctx, runKey(runID, object), bytes.NewReader(data), blob.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{metadataRunID: runID, metadataObject: object},
	})
	if err != nil {
		return blob.Info{}, fmt.Errorf("archive %s for run %s: %w", object, runID, err)
	}
	return info, nil
}

func (a *Archive) get(ctx context.Context, runID, object string) (*bytes.Buffer, error) {
	_, rc, err := a.store.Get(ctx, runKey(runID, object))
	if errors.Is(err, blob.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s (%s)", ErrRunNotFound, runID, object)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s for run %s: %w", object, runID, err)
	}
	defer rc.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(rc); err != nil {
		return nil, fmt.Errorf("read %s for run %s: %w", object, runID, err)
	}
	return &buf, nil
}

// PutInput stores the input of a run.
func (a *Archive) PutInput(ctx context.Context, in *Input) (blob.Info, error) {
	var buf bytes.Buffer
	if err := in.Encode(&buf); err != nil {
		return blob.Info{}, err
	}
	return a.put(ctx, in.RunID, inputObject, contentJSON, buf.Bytes())
}

// Input loads the input of a run.
func (a *Archive) Input(ctx context.Context, runID string) (*Input, error) {
	buf, err := a.get(ctx, runID, inputObject)
	if err != nil {
		return nil, err
	}
	return DecodeInput(buf)
}

// PutResults stores the results of a run.
func (a *Archive) PutResults(ctx context.Context, res *Results) (blob.Info, error) {
	var buf bytes.Buffer
	if err := res.Encode(&buf); err != nil {
		return blob.Info{}, err
	}
	return a.put(ctx, res.RunID, resultsObject, contentJSON, buf.Bytes())
}

// Results loads the results of a run.
func (a *Archive) Results(ctx context.Context, runID string) (*Results, error) {
	buf, err := a.get(ctx, runID, resultsObject)
	if err != nil {
		return nil, err
	}
	return Ingest(buf)
}

// PutModel stores the model of a run as an opsa-mef document.
func (a *Archive) PutModel(ctx context.Context, runID string, snapshot memory.Snapshot) (blob.Info, error) {
	var buf bytes.Buffer
	if err := mef.Write(&buf, snapshot); err != nil {
		return blob.Info{}, err
	}
	return a.put(ctx, runID, modelObject, contentMEF, buf.Bytes())
}

// Model loads the archived opsa-mef document of a run.
func (a *Archive) Model(ctx context.Context, runID string) (*mef.Model, error) {
	buf, err := a.get(ctx, runID, modelObject)
	if err != nil {
		return nil, err
	}
	return mef.LoadReader(runKey(runID, modelObject), buf)
}

// Runs lists archived run ids in key order.
func (a *Archive) Runs(ctx context.Context) ([]string, error) {
	infos, err := a.store.List(ctx, archiveRoot+"/")
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	seen := make(map[string]struct{})
	var runs []string
	for _, info := range infos {
		rest := strings.TrimPrefix(info.Key, archiveRoot+"/")
		id, _, ok := strings.Cut(rest, "/")
		if !ok || id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		runs = append(runs, id)
	}
	sort.Strings(runs)
	return runs, nil
}
