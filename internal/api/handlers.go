package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-classroom/internal/hub"
	"github.com/npezzotti/go-classroom/internal/logging"
	"github.com/npezzotti/go-classroom/internal/types"
)

const maxBodyBytes = 64 << 10

var validate = validator.New(validator.WithRequiredStructEnabled())

func (s *ClassroomApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("json encode")
	}
}

func (s *ClassroomApp) writeError(w http.ResponseWriter, r *http.Request, errResp *ApiError) {
	if errResp.StatusCode >= http.StatusInternalServerError {
		logging.Ctx(r.Context(), s.log).Error().Err(errResp).Msg("request failed")
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return err
	}
	return nil
}

func parseLimit(r *http.Request) (int, error) {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return 0, nil
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("invalid limit %q", limitStr)
	}
	return limit, nil
}

func (s *ClassroomApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		s.writeError(w, r, NewInternalServerError(err))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *ClassroomApp) listNotifications(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFrom(r.Context())
	if !ok {
		s.writeError(w, r, NewUnauthorizedError())
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		s.writeError(w, r, NewValidationError(err))
		return
	}

	unreadOnly := false
	if v := r.URL.Query().Get("unread"); v != "" {
		unreadOnly, err = strconv.ParseBool(v)
		if err != nil {
			s.writeError(w, r, NewBadRequestError())
			return
		}
	}

	list, err := s.hub.Notifications(r.Context(), sess.UserId, unreadOnly, limit)
	if err != nil {
		s.writeError(w, r, hubError(err))
		return
	}

	s.writeJson(w, http.StatusOK, list)
}

func (s *ClassroomApp) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFrom(r.Context())
	if !ok {
		s.writeError(w, r, NewUnauthorizedError())
		return
	}

	if err := s.hub.MarkRead(r.Context(), r.PathValue("id"), sess.UserId); err != nil {
		s.writeError(w, r, hubError(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *ClassroomApp) markAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFrom(r.Context())
	if !ok {
		s.writeError(w, r, NewUnauthorizedError())
		return
	}

	n, err := s.hub.MarkAllRead(r.Context(), sess.UserId)
	if err != nil {
		s.writeError(w, r, hubError(err))
		return
	}

	s.writeJson(w, http.StatusOK, map[string]int64{"updated": n})
}

func (s *ClassroomApp) createNotification(w http.ResponseWriter, r *http.Request) {
	var params hub.NotifyParams
	if err := decodeBody(r, &params); err != nil {
		s.writeError(w, r, NewValidationError(err))
		return
	}

	sent, err := s.hub.Notify(r.Context(), params)
	if err != nil {
		s.writeError(w, r, hubError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, sent)
}

func (s *ClassroomApp) postEvent(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFrom(r.Context())
	if !ok {
		s.writeError(w, r, NewUnauthorizedError())
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, r, NewBadRequestError())
		return
	}

	from := hub.Identity{UserId: sess.UserId, Username: sess.Username}
	sent, err := s.hub.NotifyEvent(r.Context(), from, r.PathValue("event"), raw)
	if err != nil {
		s.writeError(w, r, hubError(err))
		return
	}

	s.writeJson(w, http.StatusAccepted, map[string]int{"count": len(sent)})
}

func (s *ClassroomApp) getRoomMessages(w http.ResponseWriter, r *http.Request) {
	roomId := r.PathValue("roomId")

	var before time.Time
	if v := r.URL.Query().Get("before"); v != "" {
		var err error
		before, err = time.Parse(time.RFC3339Nano, v)
		if err != nil {
			s.writeError(w, r, NewValidationError(fmt.Errorf("invalid before %q", v)))
			return
		}
	}

	limit, err := parseLimit(r)
	if err != nil {
		s.writeError(w, r, NewValidationError(err))
		return
	}

	msgs, err := s.hub.RoomMessages(r.Context(), roomId, before, limit)
	if err != nil {
		s.writeError(w, r, hubError(err))
		return
	}

	s.writeJson(w, http.StatusOK, msgs)
}

func (s *ClassroomApp) getRoomUsers(w http.ResponseWriter, r *http.Request) {
	roomId := r.PathValue("roomId")

	users, err := s.hub.MembersOf(r.Context(), roomId)
	if err != nil {
		s.writeError(w, r, hubError(err))
		return
	}

	s.writeJson(w, http.StatusOK, types.RoomUsers{RoomId: roomId, Users: users})
}

func (s *ClassroomApp) getCategories(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.ListCategories(r.Context())
	if err != nil {
		s.writeError(w, r, NewInternalServerError(err))
		return
	}

	categories := make([]types.Category, 0, len(rows))
	for _, c := range rows {
		categories = append(categories, types.Category{
			Id:          c.Id,
			Name:        c.Name,
			Description: c.Description,
		})
	}

	s.writeJson(w, http.StatusOK, categories)
}

// serveWs upgrades the request. A valid session token registers the
// connection straight away; without one the client must send register or
// userLogin first.
func (s *ClassroomApp) serveWs(w http.ResponseWriter, r *http.Request) {
	var identity hub.Identity
	tokenString, err := tokenFromRequest(r)
	switch {
	case err == nil:
		sess, err := verifyToken(s.signingKey, tokenString)
		if err != nil {
			logging.Ctx(r.Context(), s.log).Debug().Err(err).Msg("rejecting websocket with bad token")
			s.writeError(w, r, NewUnauthorizedError())
			return
		}
		identity = hub.Identity{UserId: sess.UserId, Username: sess.Username}
	case !errors.Is(err, errNoToken):
		s.writeError(w, r, NewUnauthorizedError())
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Ctx(r.Context(), s.log).Warn().Err(err).Msg("error upgrading connection")
		return
	}

	client, err := hub.NewClient(conn, s.hub, identity, s.log)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to create client")
		conn.Close()
		return
	}

	if err := s.hub.Connect(client); err != nil {
		s.log.Warn().Err(err).Msg("hub rejected client")
		conn.Close()
		return
	}

	go client.Write()
	go client.Read()
}
