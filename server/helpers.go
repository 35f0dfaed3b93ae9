package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Daskott/sentinel/client/backend"
	"github.com/Daskott/sentinel/server/auth"
	"github.com/Daskott/sentinel/server/models"
	"github.com/Daskott/sentinel/utils"
	"github.com/go-playground/validator"
)

// ---------------------------------------------------------------------------------//
// Handler Helper functions
// --------------------------------------------------------------------------------//

func writeResponse(rw http.ResponseWriter, payLoad ResponsePayload, statusCode int) {
	if statusCode >= http.StatusInternalServerError {
		logg.Error(payLoad.Errors)
	} else if statusCode >= http.StatusBadRequest {
		logg.Info(payLoad.Errors)
	}

	rw.WriteHeader(statusCode)
	json.NewEncoder(rw).Encode(payLoad)
}

func writeError(rw http.ResponseWriter, err error, statusCode int) {
	writeResponse(rw, ResponsePayload{Errors: []string{err.Error()}}, statusCode)
}

func writeData(rw http.ResponseWriter, data interface{}, statusCode int) {
	writeResponse(rw, ResponsePayload{Success: true, Data: data}, statusCode)
}

func validationErrors(err error) []string {
	return strings.Split(err.Error(), "\n")
}

func RegisterValidators(validate *validator.Validate) error {
	err := validate.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		// if whitespace in password return false
		err := validate.Var(fl.Field().String(), "contains= ")
		if err == nil {
			return false
		}
		return len(fl.Field().String()) >= MIN_PASSWORD_LENGTH
	})
	if err != nil {
		return err
	}

	// yaml gives booleans, env vars give strings
	return validate.RegisterValidation("bool", func(fl validator.FieldLevel) bool {
		switch value := fl.Field().Interface().(type) {
		case bool:
			return true
		case string:
			value = strings.ToLower(value)
			return value == "true" || value == "false" || value == "1" || value == "0"
		}
		return false
	})
}

// decodeRows accepts either a single json object or an array of them
func decodeRows(body []byte) ([]json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, fmt.Errorf("request body is required")
	}

	if strings.HasPrefix(trimmed, "[") {
		rows := []json.RawMessage{}
		if err := json.Unmarshal([]byte(trimmed), &rows); err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, fmt.Errorf("at least one row is required")
		}
		return rows, nil
	}

	return []json.RawMessage{json.RawMessage(trimmed)}, nil
}

// parseQuery turns '?col=eq.val&order=col.desc' into a models.Query, rejecting unknown columns
func parseQuery(values map[string][]string, columns map[string]bool) (models.Query, error) {
	query := models.Query{Where: map[string]interface{}{}}

	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}
		value := vals[len(vals)-1]

		switch key {
		case "order":
			order, err := parseOrder(value, columns)
			if err != nil {
				return query, err
			}
			query.Order = order
		case "on_conflict":
			// handled by the insert handler
		default:
			if !columns[key] {
				return query, fmt.Errorf("unknown column %q", key)
			}

			filter, err := backend.ParseFilter(key + "=" + value)
			if err != nil {
				return query, err
			}
			query.Where[key] = filter[key]
		}
	}

	return query, nil
}

func parseOrder(value string, columns map[string]bool) (string, error) {
	segments := strings.SplitN(value, ".", 2)
	direction := "asc"
	if len(segments) == 2 {
		direction = strings.ToLower(segments[1])
	}

	if !columns[segments[0]] || (direction != "asc" && direction != "desc") {
		return "", fmt.Errorf("invalid order %q, expected <column>.<asc|desc>", value)
	}

	return segments[0] + " " + direction, nil
}

// ownedBy pins 'column' to 'userID'. It returns false when the caller already
// filtered on that column for someone else, which can never match.
func ownedBy(query *models.Query, column, userID string) bool {
	if value, ok := query.Where[column]; ok && fmt.Sprint(value) != userID {
		return false
	}
	query.Where[column] = userID
	return true
}

// ---------------------------------------------------------------------------------//
// Middleware Helper functions
// --------------------------------------------------------------------------------//

func (s *Server) decodeAndVerifyAuthHeader(authHeaderValue string) DecodedJWT {
	authHeaderList := strings.Split(authHeaderValue, "Bearer ")
	if len(authHeaderList) < 2 {
		return DecodedJWT{ErrorMsg: "no token provided"}
	}

	tokenClaims, err := auth.DecodeJWT(authHeaderList[1], s.keyPair)
	if err != nil {
		return DecodedJWT{ErrorMsg: "invalid token provided"}
	}

	// validate that the user account still exists
	user, err := models.FindUserBy("id", tokenClaims.Subject)
	if err != nil {
		return DecodedJWT{ErrorMsg: "invalid token provided"}
	}

	return DecodedJWT{Claims: tokenClaims, User: user}
}

func requestUser(r *http.Request) *models.User {
	decodedJWT, _ := r.Context().Value(RequestContextKey("decodedJWT")).(DecodedJWT)
	return decodedJWT.User
}

// ---------------------------------------------------------------------------------//
// Server Helper functions
// --------------------------------------------------------------------------------//

func serve(server *http.Server) {
	logg.Infof("Sentinel server is listening on port%v", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Fatal(err)
	}
}

func (s *Server) cleanup(server *http.Server) {
	// Stop all jobs
	s.workerPool.Stop()

	if s.config.Google.Storage.BackupEnabled() {
		if err := s.backupSqliteDb(nil); err != nil {
			logg.Error(err)
		}
	}

	// Shutdown server gracefully
	ctxShutDown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctxShutDown); err != nil {
		logg.Fatalf("Sentinel server shutdown failed:%+s", err)
	}

	logg.Infof("Sentinel server stopped properly")
}

// configDirectory retrieves the directory to store sentinel data
// Or logs an error message and then calls os.Exit if it's unable to.
func configDirectory(devMode bool) string {
	// Use 'sentinel' folder in home directory for prod
	configFolderName := "sentinel"
	rootDir, err := os.UserHomeDir()
	fatalOnError(err)

	// Use 'dev' folder in current directory for dev mode
	if devMode {
		configFolderName = "dev"
		rootDir, err = os.Getwd()
		fatalOnError(err)
	}

	configDir := filepath.Join(rootDir, configFolderName)

	err = utils.CreateDirIfNotExist(configDir)
	fatalOnError(err)

	return configDir
}

func fatalOnError(err error) {
	if err != nil {
		logg.Fatal(err)
	}
}
