package scores

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"connectrpc.com/connect"
)

const (
	ScoreServiceName = "scoreboard.v1.ScoreService"

	GetScoresProcedure = "/" + ScoreServiceName + "/GetScores"
)

type GetScoresRequest struct {
	Resolution string `json:"resolution"`
	Offset     int    `json:"offset"`
}

type GetScoresResponse struct {
	Scores map[Resolution]Standings `json:"scores"`
}

// ScoresApp defines what the service layer needs from the score engine
type ScoresApp interface {
	GetScores(ctx context.Context, res Resolution, offset int) (map[Resolution]Standings, error)
}

// Service implements the ScoreService Connect interface
type Service struct {
	app ScoresApp
}

// NewService creates a new scores Connect service
func NewService(app ScoresApp) *Service {
	return &Service{
		app: app,
	}
}

// GetScores returns standings for the requested resolution and offset
func (s *Service) GetScores(ctx context.Context, req *connect.Request[GetScoresRequest]) (*connect.Response[GetScoresResponse], error) {
	res, err := ParseResolution(req.Msg.Resolution)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	scores, err := s.app.GetScores(ctx, res, req.Msg.Offset)
	if err != nil {
		if errors.Is(err, ErrNegativeOffset) {
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	return connect.NewResponse(&GetScoresResponse{
		Scores: scores,
	}), nil
}

// NewServiceHandler builds the HTTP handler for the score service. The returned
// path is the prefix to mount it on.
func NewServiceHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)
	getScores := connect.NewUnaryHandler(GetScoresProcedure, svc.GetScores, opts...)

	return "/" + ScoreServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case GetScoresProcedure:
			getScores.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// jsonCodec encodes plain Go structs, standing in for protojson.
type jsonCodec struct{}

func (jsonCodec) Name() string {
	return "json"
}

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte, msg any) error {
	return json.Unmarshal(data, msg)
}
