package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/Daskott/sentinel/client/backend"
	"github.com/Daskott/sentinel/server/auth"
	"github.com/Daskott/sentinel/server/auth/key"
	"github.com/Daskott/sentinel/server/functions"
	"github.com/Daskott/sentinel/server/gstorage"
	"github.com/Daskott/sentinel/server/metrics"
	"github.com/Daskott/sentinel/server/models"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

const (
	MIN_PASSWORD_LENGTH = 8

	// MAX_RECORDING_BYTES caps emergency recording uploads
	MAX_RECORDING_BYTES = 25 << 20
)

type ResponsePayload struct {
	Errors  []string    `json:"errors"`
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

type RequestContextKey string

type DecodedJWT struct {
	Claims   *auth.SentinelTokenClaims
	User     *models.User
	ErrorMsg string
}

// ---------------------------------------------------------------------------------//
// Auth
// --------------------------------------------------------------------------------//

func (s *Server) signUp(rw http.ResponseWriter, r *http.Request) {
	user := models.User{}

	err := json.NewDecoder(io.LimitReader(r.Body, MAX_BODY_BYTES)).Decode(&user)
	if err != nil {
		writeError(rw, err, http.StatusBadRequest)
		return
	}
	user.ID = ""
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.Name = strings.TrimSpace(user.Name)

	errs := validate.Struct(user)
	if errs != nil {
		writeResponse(rw, ResponsePayload{Errors: validationErrors(errs)}, http.StatusBadRequest)
		return
	}

	exists, err := models.UserExists(user.Email)
	if err != nil {
		writeError(rw, err, http.StatusInternalServerError)
		return
	}

	if exists {
		writeError(rw, fmt.Errorf("an account with that email already exists"), http.StatusConflict)
		return
	}

	err = models.CreateUser(&user)
	if err != nil {
		writeError(rw, err, http.StatusInternalServerError)
		return
	}

	writeData(rw, toAccount(&user), http.StatusCreated)
}

func (s *Server) signIn(rw http.ResponseWriter, r *http.Request) {
	credentials := backend.Credentials{}
	err := json.NewDecoder(io.LimitReader(r.Body, MAX_BODY_BYTES)).Decode(&credentials)
	if err != nil {
		writeError(rw, err, http.StatusBadRequest)
		return
	}

	user, err := models.FindUserWithPassword(strings.ToLower(strings.TrimSpace(credentials.Email)))
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(rw, err, http.StatusInternalServerError)
		return
	}

	if user == nil || !auth.CheckPasswordHash(credentials.Password, user.Password) {
		writeError(rw, fmt.Errorf("email/password is invalid"), http.StatusUnauthorized)
		return
	}

	claims := auth.NewTokenClaims(user.ID, user.Name, user.Email, time.Now())
	token, err := auth.EncodeJWT(claims, s.keyPair)
	if err != nil {
		writeError(rw, err, http.StatusInternalServerError)
		return
	}

	writeData(rw, backend.Token{
		AccessToken: token,
		ExpiresAt:   claims.ExpiresAt,
		User:        toAccount(user),
	}, http.StatusOK)
}

func (s *Server) currentUser(rw http.ResponseWriter, r *http.Request) {
	writeData(rw, toAccount(requestUser(r)), http.StatusOK)
}

func (s *Server) jwks(rw http.ResponseWriter, r *http.Request) {
	jwk, err := s.keyPair.JWK()
	if err != nil {
		writeError(rw, err, http.StatusInternalServerError)
		return
	}

	json.NewEncoder(rw).Encode(key.ExportJWKAsJWKS(jwk))
}

// ---------------------------------------------------------------------------------//
// Functions, storage & realtime
// --------------------------------------------------------------------------------//

func (s *Server) invokeFunction(rw http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	user := requestUser(r)

	payload, err := io.ReadAll(io.LimitReader(r.Body, MAX_BODY_BYTES))
	if err != nil {
		writeError(rw, err, http.StatusBadRequest)
		return
	}

	result, err := s.functions.Invoke(r.Context(), user.ID, name, payload)
	switch {
	case err == nil:
		metrics.FunctionInvocations.WithLabelValues(name, "ok").Inc()
		writeData(rw, result, http.StatusOK)
	case errors.Is(err, functions.ErrUnknownFunction):
		writeError(rw, err, http.StatusNotFound)
	case errors.Is(err, functions.ErrInvalidPayload):
		metrics.FunctionInvocations.WithLabelValues(name, "error").Inc()
		writeError(rw, err, http.StatusBadRequest)
	case errors.Is(err, functions.ErrRateLimited):
		metrics.FunctionInvocations.WithLabelValues(name, "rate_limited").Inc()
		writeError(rw, err, http.StatusTooManyRequests)
	default:
		metrics.FunctionInvocations.WithLabelValues(name, "error").Inc()
		writeError(rw, err, http.StatusBadGateway)
	}
}

func (s *Server) uploadRecording(rw http.ResponseWriter, r *http.Request) {
	storageConfig := s.config.Google.Storage
	if s.storage == nil || !storageConfig.RecordingsEnabled() {
		writeError(rw, fmt.Errorf("recordings are not enabled on this server"), http.StatusServiceUnavailable)
		return
	}

	r.Body = http.MaxBytesReader(rw, r.Body, MAX_RECORDING_BYTES)
	file, header, err := r.FormFile("recording")
	if err != nil {
		writeError(rw, fmt.Errorf("a 'recording' file is required: %v", err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	object := gstorage.ObjectName(
		gstorage.ObjectName(storageConfig.RecordingsPrefix, requestUser(r).ID),
		uuid.NewString()+strings.ToLower(filepath.Ext(header.Filename)),
	)

	mediaURL, err := s.storage.UploadObject(r.Context(), storageConfig.Bucket, object, file, header.Header.Get("Content-Type"))
	if err != nil {
		writeError(rw, err, http.StatusBadGateway)
		return
	}

	writeData(rw, map[string]string{"media_url": mediaURL}, http.StatusCreated)
}

func (s *Server) subscribe(rw http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	query := r.URL.Query()

	table := query.Get("table")
	if _, ok := tableColumns[table]; !ok {
		writeError(rw, fmt.Errorf("unknown table %q", table), http.StatusNotFound)
		return
	}

	event := backend.EventType(query.Get("event"))
	if event == "" {
		event = backend.AllEvents
	}
	switch event {
	case backend.InsertEvent, backend.UpdateEvent, backend.DeleteEvent, backend.AllEvents:
	default:
		writeError(rw, fmt.Errorf("unknown event %q", event), http.StatusBadRequest)
		return
	}

	filter, err := backend.ParseFilter(query.Get("filter"))
	if err != nil {
		writeError(rw, err, http.StatusBadRequest)
		return
	}

	for column := range filter {
		if !tableColumns[table][column] {
			writeError(rw, fmt.Errorf("unknown column %q", column), http.StatusBadRequest)
			return
		}
	}

	if !canSubscribe(table, filter, user.ID) {
		writeError(rw, fmt.Errorf("subscriptions must be filtered to your own rows"), http.StatusForbidden)
		return
	}

	s.broker.ServeWS(rw, r, table, event, filter)
}

// smsStatus receives twilio delivery status callbacks for sos sms
func (s *Server) smsStatus(rw http.ResponseWriter, r *http.Request) {
	err := r.ParseForm()
	if err != nil {
		writeError(rw, err, http.StatusBadRequest)
		return
	}

	if !s.smsValidator.ValidateRequest(r.URL.Path, r.PostForm, r.Header.Get("X-Twilio-Signature")) {
		writeError(rw, fmt.Errorf("invalid request signature"), http.StatusUnauthorized)
		return
	}

	status := r.PostForm.Get("MessageStatus")
	if status == "failed" || status == "undelivered" {
		metrics.SmsSent.WithLabelValues("undelivered").Inc()
		logg.Warnf("sms %v was not delivered: %v", r.PostForm.Get("MessageSid"), r.PostForm.Get("ErrorCode"))
	} else {
		logg.Infof("sms %v is %v", r.PostForm.Get("MessageSid"), status)
	}

	writeData(rw, nil, http.StatusOK)
}

func (s *Server) health(rw http.ResponseWriter, r *http.Request) {
	writeData(rw, map[string]interface{}{"subscriptions": s.broker.Count()}, http.StatusOK)
}

// ---------------------------------------------------------------------------------//
// Helper functions
// --------------------------------------------------------------------------------//

// canSubscribe only allows change feeds scoped to rows the user can read
func canSubscribe(table string, filter backend.Filter, userID string) bool {
	switch table {
	case backend.SosAlertsTable:
		return filter["recipient_user_id"] == userID || filter["sender_user_id"] == userID
	default:
		return filter["user_id"] == userID
	}
}

func toAccount(user *models.User) backend.Account {
	return backend.Account{
		ID:          user.ID,
		Name:        user.Name,
		Email:       user.Email,
		PhoneNumber: user.PhoneNumber,
	}
}
