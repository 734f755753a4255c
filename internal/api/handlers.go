package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"pairlink/internal/connect"
	"pairlink/internal/database"
	"pairlink/internal/server"
	"pairlink/internal/stats"
	"pairlink/internal/types"
)

const maxUploadBytes = 10 << 20

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type UpdateAccountRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	AvatarRef string `json:"avatar_ref"`
}

type CreateRequestRequest struct {
	ReceiverId int `json:"receiver_id"`
}

type RespondRequestRequest struct {
	Id       string `json:"id"`
	Decision string `json:"decision"`
}

type ConnectionStatus struct {
	PeerId    int  `json:"peer_id"`
	Connected bool `json:"connected"`
}

type UploadResponse struct {
	ImageRef string `json:"image_ref"`
}

func (s *PairlinkApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *PairlinkApp) writeError(w http.ResponseWriter, errResp *ApiError) {
	if errResp.StatusCode == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}

	s.writeJson(w, errResp.StatusCode, errResp)
}

// storeError classifies a repository failure: transient outages become
// 503 with Retry-After so clients back off and retry, everything else
// is a 500.
func (s *PairlinkApp) storeError(err error) *ApiError {
	if database.IsTransient(err) {
		return NewServiceUnavailableError(err)
	}

	return NewInternalServerError(err)
}

func accountFromDb(a database.Account) types.Account {
	return types.Account{
		Id:           a.Id,
		Username:     a.Username,
		EmailAddress: a.EmailAddress,
		AvatarRef:    a.AvatarRef,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func (s *PairlinkApp) healthCheck(w http.ResponseWriter, _ *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Println("health check:", err)
		s.writeError(w, NewInternalServerError(err))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *PairlinkApp) createAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	if req.Username == "" || req.Email == "" || req.Password == "" {
		s.writeError(w, NewBadRequestError())
		return
	}

	pwdHash, err := hashPassword(req.Password)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	newUser, err := s.db.CreateAccount(database.CreateAccountParams{
		Username:     req.Username,
		EmailAddress: req.Email,
		PasswordHash: pwdHash,
	})
	if err != nil {
		if database.IsUniqueViolation(err, "") {
			s.writeError(w, NewConflictError("email or username already registered"))
			return
		}
		s.writeError(w, s.storeError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, accountFromDb(newUser))
}

func (s *PairlinkApp) account(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		userId, ok := UserId(r.Context())
		if !ok {
			s.writeError(w, NewUnauthorizedError())
			return
		}

		user, err := s.db.GetAccountById(userId)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				s.writeError(w, NewNotFoundError())
				return
			}
			s.writeError(w, s.storeError(err))
			return
		}

		s.writeJson(w, http.StatusOK, accountFromDb(user))
	case http.MethodPut:
		userId, ok := UserId(r.Context())
		if !ok {
			s.writeError(w, NewUnauthorizedError())
			return
		}

		curUser, err := s.db.GetAccountById(userId)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				s.writeError(w, NewNotFoundError())
				return
			}
			s.writeError(w, s.storeError(err))
			return
		}

		var req UpdateAccountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, NewBadRequestError())
			return
		}

		if req.Username == "" || req.Password == "" {
			s.writeError(w, NewBadRequestError())
			return
		}

		pwdHash, err := hashPassword(req.Password)
		if err != nil {
			s.writeError(w, NewInternalServerError(err))
			return
		}

		dbUser, err := s.db.UpdateAccount(database.UpdateAccountParams{
			AccountId:    curUser.Id,
			Username:     req.Username,
			PasswordHash: pwdHash,
			AvatarRef:    req.AvatarRef,
		})
		if err != nil {
			s.writeError(w, s.storeError(err))
			return
		}

		s.writeJson(w, http.StatusOK, accountFromDb(dbUser))
	default:
		s.writeError(w, NewMethodNotAllowedError())
	}
}

func (s *PairlinkApp) session(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	user, err := s.db.GetAccountById(userId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeError(w, NewNotFoundError())
			return
		}
		s.writeError(w, s.storeError(err))
		return
	}

	s.writeJson(w, http.StatusOK, accountFromDb(user))
}

func (s *PairlinkApp) login(w http.ResponseWriter, r *http.Request) {
	var lr LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&lr); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	if lr.Email == "" || lr.Password == "" {
		s.writeError(w, NewBadRequestError())
		return
	}

	dbUser, err := s.db.GetAccountByEmail(lr.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeError(w, NewNotFoundError())
			return
		}
		s.writeError(w, s.storeError(err))
		return
	}

	if !verifyPassword(dbUser.PasswordHash, lr.Password) {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	u := accountFromDb(dbUser)

	token, err := s.createJwtForSession(u, defaultJwtExpiration)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	http.SetCookie(w, createJwtCookie(token, defaultJwtExpiration))

	s.writeJson(w, http.StatusOK, u)
}

func (s *PairlinkApp) logout(w http.ResponseWriter, _ *http.Request) {
	// instruct browser to delete cookie by overwriting it with an expired token
	http.SetCookie(w, createJwtCookie("", time.Duration(time.Unix(0, 0).Unix())))
	w.WriteHeader(http.StatusNoContent)
}

// listUsers returns every other account, annotated with whether it is
// connected to the caller and how many unresolved requests it has sent
// the caller.
func (s *PairlinkApp) listUsers(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	accounts, err := s.db.ListAccounts(userId)
	if err != nil {
		s.writeError(w, s.storeError(err))
		return
	}

	pendingCounts, err := s.requests.PendingCounts(userId)
	if err != nil {
		s.writeError(w, s.storeError(err))
		return
	}

	entries := make([]types.DirectoryEntry, 0, len(accounts))
	for _, a := range accounts {
		connected, err := s.requests.IsConnected(userId, a.Id)
		if err != nil {
			s.writeError(w, s.storeError(err))
			return
		}

		entries = append(entries, types.DirectoryEntry{
			Account:      accountFromDb(a),
			Connected:    connected,
			PendingCount: pendingCounts[a.Id],
		})
	}

	s.writeJson(w, http.StatusOK, entries)
}

func (s *PairlinkApp) createRequest(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	var req CreateRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	created, err := s.requests.CreateRequest(userId, req.ReceiverId)
	if err != nil {
		switch {
		case errors.Is(err, connect.ErrSelfRequest):
			s.writeError(w, NewBadRequestError())
		case errors.Is(err, connect.ErrAccountNotFound):
			s.writeError(w, NewNotFoundError())
		case errors.Is(err, connect.ErrAlreadyConnected):
			s.writeError(w, NewConflictError("accounts are already connected"))
		case errors.Is(err, connect.ErrDuplicatePending):
			s.writeError(w, NewConflictError("request already pending"))
		default:
			s.log.Println("create request:", err)
			s.writeError(w, s.storeError(err))
		}
		return
	}

	s.stats.Incr(stats.NumRequestsCreated)
	s.writeJson(w, http.StatusCreated, created)
}

func (s *PairlinkApp) respondRequest(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	var req RespondRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	err := s.requests.Respond(req.Id, userId, connect.Decision(req.Decision))
	if err != nil {
		switch {
		case errors.Is(err, connect.ErrInvalidDecision):
			s.writeError(w, NewBadRequestError())
		case errors.Is(err, connect.ErrRequestNotFound):
			s.writeError(w, NewNotFoundError())
		case errors.Is(err, connect.ErrNotReceiver):
			s.writeError(w, NewForbiddenError())
		default:
			s.log.Println("respond request:", err)
			s.writeError(w, s.storeError(err))
		}
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *PairlinkApp) listRequests(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	pending, err := s.requests.ListPending(userId)
	if err != nil {
		s.writeError(w, s.storeError(err))
		return
	}

	s.writeJson(w, http.StatusOK, pending)
}

func (s *PairlinkApp) getConnection(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	peerId, err := strconv.Atoi(r.URL.Query().Get("peer"))
	if err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	connected, err := s.requests.IsConnected(userId, peerId)
	if err != nil {
		s.writeError(w, s.storeError(err))
		return
	}

	s.writeJson(w, http.StatusOK, ConnectionStatus{PeerId: peerId, Connected: connected})
}

func (s *PairlinkApp) getMessages(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	peerId, err := strconv.Atoi(r.URL.Query().Get("peer"))
	if err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	connected, err := s.requests.IsConnected(userId, peerId)
	if err != nil {
		s.writeError(w, s.storeError(err))
		return
	}
	if !connected {
		s.writeError(w, NewForbiddenError())
		return
	}

	var after, before, limit int

	for _, q := range []struct {
		name string
		dst  *int
	}{
		{"after", &after},
		{"before", &before},
		{"limit", &limit},
	} {
		val := r.URL.Query().Get(q.name)
		if val == "" {
			continue
		}

		*q.dst, err = strconv.Atoi(val)
		if err != nil {
			s.writeError(w, NewBadRequestError())
			return
		}
	}

	messages, err := s.mailbox.History(userId, peerId, after, before, limit)
	if err != nil {
		s.writeError(w, s.storeError(err))
		return
	}

	s.writeJson(w, http.StatusOK, messages)
}

// deleteMessages clears the caller's conversation with the peer for
// both sides. The connection itself is untouched, and clearing an
// already empty conversation succeeds.
func (s *PairlinkApp) deleteMessages(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	peerId, err := strconv.Atoi(r.URL.Query().Get("peer"))
	if err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	if err := s.requests.ClearHistory(userId, peerId); err != nil {
		s.log.Println("clear history:", err)
		s.writeError(w, s.storeError(err))
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *PairlinkApp) upload(w http.ResponseWriter, r *http.Request) {
	if _, ok := UserId(r.Context()); !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}
	defer file.Close()

	sid, err := s.generateShortId()
	if err != nil {
		s.log.Print("generateShortId:", err)
		s.writeError(w, NewInternalServerError(err))
		return
	}

	name := sid + filepath.Ext(header.Filename)
	dst, err := os.Create(filepath.Join(s.uploadDir, name))
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, UploadResponse{ImageRef: "uploads/" + name})
}

func (s *PairlinkApp) serveUpload(w http.ResponseWriter, r *http.Request) {
	http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.uploadDir))).ServeHTTP(w, r)
}

func (s *PairlinkApp) serveWs(w http.ResponseWriter, r *http.Request) {
	id, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	user, err := s.db.GetAccountById(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeError(w, NewNotFoundError())
			return
		}
		s.writeError(w, s.storeError(err))
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(accountFromDb(user), conn, s.cs, s.log)

	s.cs.RegisterClient(client)
	go client.Write()
	go client.Read()
}
