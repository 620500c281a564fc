package service

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/syntalk/im-server/internal/adapter/pubsub"
	"github.com/syntalk/im-server/internal/domain/event"
	"github.com/syntalk/im-server/internal/domain/model"
	"github.com/syntalk/im-server/internal/imerr"
	"github.com/syntalk/im-server/internal/repository"
	"github.com/syntalk/im-server/internal/service/dto"
)

// TransferService runs the offer/response handshake for file transfers.
// Byte movement is out of band; this service owns the request state machine
// and the resulting file catalog entry.
type TransferService struct {
	transfers repository.Transfers
	users     repository.Users
	relations repository.Relations
	bus       pubsub.EventDispatcher
	origin    Origin
	log       *slog.Logger
}

func NewTransferService(
	transfers repository.Transfers,
	users repository.Users,
	relations repository.Relations,
	bus pubsub.EventDispatcher,
	origin Origin,
	log *slog.Logger,
) *TransferService {
	return &TransferService{
		transfers: transfers,
		users:     users,
		relations: relations,
		bus:       bus,
		origin:    origin,
		log:       log.With("component", "transfer"),
	}
}

// Request offers a file to another user.
func (s *TransferService) Request(ctx context.Context, fromID, toID int64, fileName string, fileSize int64) (*model.FileTransferRequest, error) {
	if fileName == "" || fileSize <= 0 {
		return nil, imerr.New(imerr.InvalidParams, "file name and size are required")
	}
	if toID <= 0 || toID == fromID {
		return nil, imerr.New(imerr.InvalidParams, "invalid transfer target")
	}
	if _, err := s.users.ByID(ctx, toID); err != nil {
		return nil, err
	}
	friends, err := s.relations.AreFriends(ctx, fromID, toID)
	if err != nil {
		return nil, err
	}
	if !friends {
		return nil, imerr.New(imerr.FriendNotFound, "can only send files to friends")
	}

	req := &model.FileTransferRequest{From: fromID, To: toID, FileName: fileName, FileSize: fileSize}
	if err := s.transfers.CreateRequest(ctx, req); err != nil {
		return nil, err
	}

	s.publish(ctx, dto.NewFileEvent(dto.EventFileTransferRequest, req, fromID, toID, s.origin.String()))
	return req, nil
}

// Respond resolves a pending transfer request. Only the target may act;
// losing a resolve race reports the request as already handled.
func (s *TransferService) Respond(ctx context.Context, userID, requestID int64, accept bool) (*model.FileTransferRequest, error) {
	req, err := s.transfers.ByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.To != userID {
		return nil, imerr.New(imerr.PermissionDenied, "not the target of this transfer")
	}
	if req.State.Terminal() {
		return nil, imerr.New(imerr.FileRequestHandled, "transfer already handled")
	}

	state := model.RequestRejected
	eventType := dto.EventFileTransferRejected
	if accept {
		state = model.RequestAccepted
		eventType = dto.EventFileTransferAccepted
	}

	ok, err := s.transfers.Resolve(ctx, requestID, state)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, imerr.New(imerr.FileRequestHandled, "transfer already handled")
	}
	req.State = state

	if accept {
		file := &model.File{
			OwnerID:  req.To,
			Name:     req.FileName,
			Size:     req.FileSize,
			MimeType: "application/octet-stream",
		}
		if err := s.transfers.CreateFile(ctx, file); err != nil {
			s.log.Warn("file record creation failed", "request_id", requestID, "err", err)
		}
	}

	// The response notification goes back to the originator.
	s.publish(ctx, dto.NewFileEvent(eventType, req, req.To, req.From, s.origin.String()))
	return req, nil
}

func (s *TransferService) publish(ctx context.Context, evt *dto.FileEvent) {
	ev := event.NewBusEvent(event.TopicFiles, strconv.FormatInt(evt.ToUserID, 10), evt)
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.log.Error("file event publish failed", "event_type", evt.EventType, "err", err)
	}
}
