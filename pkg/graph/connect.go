package graph

import (
	"fmt"

	"github.com/hexlane/reconchain/pkg/schema"
)

// RejectReason names why a connect attempt was refused.
// Connect never silently no-ops.
type RejectReason string

const (
	RejectSelfEdge        RejectReason = "self_edge"
	RejectUnknownEndpoint RejectReason = "unknown_endpoint"
	RejectTargetOccupied  RejectReason = "target_occupied"
	RejectSourceOccupied  RejectReason = "source_occupied"
	RejectDuplicateEdge   RejectReason = "duplicate_edge"
	RejectCycle           RejectReason = "cycle"
	RejectIntoStart       RejectReason = "into_start"
	RejectOutOfEnd        RejectReason = "out_of_end"
	RejectBucketMismatch  RejectReason = "bucket_mismatch"
)

// EdgeRejection explains a refused connect attempt.
type EdgeRejection struct {
	Reason  RejectReason
	Message string
}

func (r *EdgeRejection) Error() string { return r.Message }

func reject(reason RejectReason, format string, args ...any) *EdgeRejection {
	return &EdgeRejection{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// Connect inserts an edge from -> to, or explains why it cannot.
// Checks, in order: identical endpoints, endpoint existence, occupied
// destination, occupied source, duplicate, cycle (via reachability from
// to back to from), kind constraints, bucket compatibility. The bucket
// check is soft: it only rejects when both sides declare non-empty
// capability sets; absent metadata allows the edge and leaves flagging
// to the validator.
func (g *Graph) Connect(fromID, toID string) (*Edge, *EdgeRejection) {
	if fromID == toID {
		return nil, reject(RejectSelfEdge, "cannot connect a node to itself")
	}

	from, ok := g.nodes[fromID]
	if !ok {
		return nil, reject(RejectUnknownEndpoint, "source node %q not found", fromID)
	}
	to, ok := g.nodes[toID]
	if !ok {
		return nil, reject(RejectUnknownEndpoint, "destination node %q not found", toID)
	}

	if g.InDegree(toID) > 0 {
		return nil, reject(RejectTargetOccupied, "%s already has an incoming connection", to.Name)
	}
	if g.OutDegree(fromID) > 0 {
		return nil, reject(RejectSourceOccupied, "%s already has an outgoing connection", from.Name)
	}
	for _, eid := range g.edgeOrder {
		e := g.edges[eid]
		if e.From == fromID && e.To == toID {
			return nil, reject(RejectDuplicateEdge, "%s is already connected to %s", from.Name, to.Name)
		}
	}

	if PathExists(g.Adjacency(), toID, fromID) {
		return nil, reject(RejectCycle, "connecting %s to %s would create a cycle", from.Name, to.Name)
	}

	if to.Kind == schema.NodeKindStart {
		return nil, reject(RejectIntoStart, "%s is a start tool and cannot receive input", to.Name)
	}
	if from.Kind == schema.NodeKindEnd {
		return nil, reject(RejectOutOfEnd, "%s is an end tool and cannot produce output", from.Name)
	}

	if from.HasMeta && to.HasMeta &&
		len(from.IOPolicy.Emits) > 0 && len(to.IOPolicy.Consumes) > 0 &&
		!bucketsOverlap(from.IOPolicy.Emits, to.IOPolicy.Consumes) {
		return nil, reject(RejectBucketMismatch,
			"%s emits %v but %s consumes %v: no compatible buckets",
			from.Name, from.IOPolicy.Emits, to.Name, to.IOPolicy.Consumes)
	}

	e := &Edge{ID: newID("e"), From: fromID, To: toID}
	g.edges[e.ID] = e
	g.edgeOrder = append(g.edgeOrder, e.ID)
	return e, nil
}

// Disconnect removes an edge by ID.
func (g *Graph) Disconnect(edgeID string) error {
	if _, ok := g.edges[edgeID]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "edge %q not found", edgeID)
	}
	delete(g.edges, edgeID)
	g.edgeOrder = removeString(g.edgeOrder, edgeID)
	return nil
}

// bucketsOverlap reports whether any emitted bucket is consumed.
func bucketsOverlap(emits, consumes []string) bool {
	set := make(map[string]bool, len(emits))
	for _, b := range emits {
		set[b] = true
	}
	for _, b := range consumes {
		if set[b] {
			return true
		}
	}
	return false
}
