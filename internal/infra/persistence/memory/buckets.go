package memory

import (
	"encoding/json"
	"fmt"
)

// Bucket names used by durable backends to store snapshot sections.
const (
	BucketModel      = "model"
	BucketEvents     = "events"
	BucketFaultTrees = "fault_trees"
)

// Buckets lists the snapshot sections in persistence order.
var Buckets = []string{BucketModel, BucketEvents, BucketFaultTrees}

type modelHeader struct {
	Name  string `json:"name,omitempty"`
	Label string `json:"label,omitempty"`
}

// EncodeBucket marshals one snapshot section.
func (s Snapshot) EncodeBucket(bucket string) ([]byte, error) {
	switch bucket {
	case BucketModel:
		return json.Marshal(modelHeader{Name: s.Name, Label: s.Label})
	case BucketEvents:
		if s.Events == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(s.Events)
	case BucketFaultTrees:
		if s.FaultTrees == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(s.FaultTrees)
	default:
		return nil, fmt.Errorf("unknown bucket %q", bucket)
	}
}

// DecodeBucket unmarshals one snapshot section into s. Unknown buckets are
// ignored so older databases with extra rows still load.
func (s *Snapshot) DecodeBucket(bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	var err error
	switch bucket {
	case BucketModel:
		var header modelHeader
		if err = json.Unmarshal(payload, &header); err == nil {
			s.Name, s.Label = header.Name, header.Label
		}
	case BucketEvents:
		err = json.Unmarshal(payload, &s.Events)
	case BucketFaultTrees:
		err = json.Unmarshal(payload, &s.FaultTrees)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}
