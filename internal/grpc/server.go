package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Billy-Davies-2/flashdraft/internal/bots"
	"github.com/Billy-Davies-2/flashdraft/internal/engine"
	"github.com/Billy-Davies-2/flashdraft/internal/logger"
	"github.com/Billy-Davies-2/flashdraft/internal/models"
	"github.com/Billy-Davies-2/flashdraft/internal/pubsub"
)

var _ DraftServiceServer = (*Server)(nil)

// Server implements the gRPC DraftService
type Server struct {
	engine *engine.Engine
	pubsub *pubsub.PubSub
	bots   *bots.AutoPicker
}

// NewServer creates a new gRPC server. A nil picker leaves bot seats alone.
func NewServer(eng *engine.Engine, ps *pubsub.PubSub, picker *bots.AutoPicker) *Server {
	return &Server{
		engine: eng,
		pubsub: ps,
		bots:   picker,
	}
}

// ApplyAction decodes an action document and applies it
func (s *Server) ApplyAction(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var action models.Action
	if err := decodeStruct(req, &action); err != nil {
		return nil, toStatus(err)
	}
	logger.Debug("gRPC: Applying action", "type", action.Type, "draft_id", action.DraftID())

	state, err := s.engine.ApplyAction(action)
	if err != nil {
		return nil, toStatus(err)
	}
	if s.bots != nil && state.Status == models.StatusActive &&
		(action.Type == models.ActionStartDraft || action.Type == models.ActionHumanPick) {
		if _, next, err := s.bots.PickForBots(state.DraftID); err != nil {
			logger.Error("gRPC: Bot picks failed", "draft_id", state.DraftID, "error", err)
		} else if next != nil {
			state = next
		}
	}
	return encodeStruct(state)
}

// GetDraftState returns the state of {"draftId": ...}
func (s *Server) GetDraftState(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := req.GetFields()["draftId"].GetStringValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "draftId is required")
	}
	state, ok := s.engine.GetDraftState(id)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "draft %s not found", id)
	}
	return encodeStruct(state)
}

// ReplayToPosition rebuilds {"draftId", "round", "pick"}
func (s *Server) ReplayToPosition(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	id := fields["draftId"].GetStringValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "draftId is required")
	}
	round := int(fields["round"].GetNumberValue())
	pick := int(fields["pick"].GetNumberValue())

	state, err := s.engine.ReplayToPosition(id, round, pick)
	if err != nil {
		return nil, toStatus(err)
	}
	return encodeStruct(state)
}

// ListDrafts returns {"draftIds": [...]}
func (s *Server) ListDrafts(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	ids := s.engine.GetAllDraftIDs()
	list := make([]interface{}, len(ids))
	for i, id := range ids {
		list[i] = id
	}
	out, err := structpb.NewStruct(map[string]interface{}{"draftIds": list})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// StreamEvents streams events to clients, optionally for one draftId
func (s *Server) StreamEvents(req *structpb.Struct, stream EventStream) error {
	logger.Debug("gRPC: New client connected to event stream")
	var eventChan chan pubsub.Event
	if id := req.GetFields()["draftId"].GetStringValue(); id != "" {
		eventChan = s.pubsub.SubscribeDraft(id)
	} else {
		eventChan = s.pubsub.Subscribe()
	}
	defer s.pubsub.Unsubscribe(eventChan)

	for {
		select {
		case event, ok := <-eventChan:
			if !ok {
				return nil
			}
			msg, err := encodeStruct(event)
			if err != nil {
				logger.Warn("gRPC: Dropping unencodable event", "type", event.Type, "error", err)
				continue
			}
			if err := stream.Send(msg); err != nil {
				logger.Error("gRPC: Failed to send event to stream", "error", err)
				return err
			}
		case <-stream.Context().Done():
			logger.Debug("gRPC: Client disconnected from event stream")
			return nil
		}
	}
}

// encodeStruct converts any JSON-marshalable value to a Struct
func encodeStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// decodeStruct converts a Struct into v through its JSON form
func decodeStruct(in *structpb.Struct, v interface{}) error {
	if in == nil {
		return fmt.Errorf("%w: empty request", engine.ErrInvalidPayload)
	}
	data, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("%w: %v", engine.ErrInvalidPayload, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		if errors.Is(err, engine.ErrUnknownActionType) {
			return err
		}
		return fmt.Errorf("%w: %v", engine.ErrInvalidPayload, err)
	}
	return nil
}

// toStatus maps engine errors to gRPC status codes
func toStatus(err error) error {
	switch {
	case errors.Is(err, engine.ErrDraftNotFound), errors.Is(err, engine.ErrSetNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, engine.ErrDraftExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, engine.ErrInvalidPayload),
		errors.Is(err, engine.ErrUnknownActionType),
		errors.Is(err, engine.ErrInvalidPick):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, engine.ErrDraftNotActive), errors.Is(err, engine.ErrInvalidTransition):
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
