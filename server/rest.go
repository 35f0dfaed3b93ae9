package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Daskott/sentinel/client/backend"
	"github.com/Daskott/sentinel/server/metrics"
	"github.com/Daskott/sentinel/server/models"
	"github.com/Daskott/sentinel/server/work"
	"github.com/gorilla/mux"
)

// MAX_BODY_BYTES caps json request bodies
const MAX_BODY_BYTES = 1 << 20

var tableColumns = map[string]map[string]bool{
	backend.ContactsTable:     models.ContactColumns,
	backend.UserSettingsTable: models.UserSettingsColumns,
	backend.SosAlertsTable:    models.SosAlertColumns,
}

func (s *Server) selectRows(rw http.ResponseWriter, r *http.Request) {
	table := mux.Vars(r)["table"]
	user := requestUser(r)

	columns, ok := tableColumns[table]
	if !ok {
		writeError(rw, fmt.Errorf("unknown table %q", table), http.StatusNotFound)
		return
	}

	query, err := parseQuery(r.URL.Query(), columns)
	if err != nil {
		writeError(rw, err, http.StatusBadRequest)
		return
	}

	var rows interface{}
	switch table {
	case backend.ContactsTable:
		if !ownedBy(&query, "user_id", user.ID) {
			writeData(rw, []models.Contact{}, http.StatusOK)
			return
		}
		rows, err = models.FindContacts(query)

	case backend.UserSettingsTable:
		if !ownedBy(&query, "user_id", user.ID) {
			writeData(rw, []models.UserSettings{}, http.StatusOK)
			return
		}
		rows, err = models.FindUserSettings(query)

	case backend.SosAlertsTable:
		rows, err = models.FindSosAlerts(user.ID, query)
	}

	if err != nil {
		writeError(rw, err, http.StatusInternalServerError)
		return
	}

	writeData(rw, rows, http.StatusOK)
}

func (s *Server) insertRows(rw http.ResponseWriter, r *http.Request) {
	table := mux.Vars(r)["table"]
	if _, ok := tableColumns[table]; !ok {
		writeError(rw, fmt.Errorf("unknown table %q", table), http.StatusNotFound)
		return
	}

	onConflict := r.URL.Query().Get("on_conflict")
	if onConflict != "" && !(table == backend.UserSettingsTable && onConflict == "user_id") {
		writeError(rw, fmt.Errorf("on_conflict=%v is not supported for %v", onConflict, table), http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MAX_BODY_BYTES))
	if err != nil {
		writeError(rw, err, http.StatusBadRequest)
		return
	}

	rows, err := decodeRows(body)
	if err != nil {
		writeError(rw, err, http.StatusBadRequest)
		return
	}

	switch table {
	case backend.ContactsTable:
		s.insertContacts(rw, r, rows)
	case backend.UserSettingsTable:
		s.upsertUserSettings(rw, r, rows)
	case backend.SosAlertsTable:
		s.insertSosAlerts(rw, r, rows)
	}
}

func (s *Server) deleteRows(rw http.ResponseWriter, r *http.Request) {
	table := mux.Vars(r)["table"]
	user := requestUser(r)

	if table == backend.SosAlertsTable {
		writeError(rw, fmt.Errorf("sos alerts cannot be deleted"), http.StatusMethodNotAllowed)
		return
	}

	if table != backend.ContactsTable {
		writeError(rw, fmt.Errorf("unknown table %q", table), http.StatusNotFound)
		return
	}

	query, err := parseQuery(r.URL.Query(), models.ContactColumns)
	if err != nil {
		writeError(rw, err, http.StatusBadRequest)
		return
	}

	// An unfiltered delete would wipe every row the caller owns
	if len(query.Where) == 0 {
		writeError(rw, fmt.Errorf("a filter is required"), http.StatusBadRequest)
		return
	}

	if !ownedBy(&query, "user_id", user.ID) {
		writeData(rw, []models.Contact{}, http.StatusOK)
		return
	}

	deleted, err := models.DeleteContacts(query)
	if err != nil {
		writeError(rw, err, http.StatusInternalServerError)
		return
	}

	for i := range deleted {
		s.publish(backend.ContactsTable, backend.DeleteEvent, nil, deleted[i])
	}

	writeData(rw, deleted, http.StatusOK)
}

// ---------------------------------------------------------------------------------//
// Per table writes
// --------------------------------------------------------------------------------//

func (s *Server) insertContacts(rw http.ResponseWriter, r *http.Request, rows []json.RawMessage) {
	user := requestUser(r)
	contacts := make([]models.Contact, 0, len(rows))

	for _, raw := range rows {
		contact := models.Contact{}
		if err := json.Unmarshal(raw, &contact); err != nil {
			writeError(rw, err, http.StatusBadRequest)
			return
		}

		contact.ID = ""
		contact.UserID = user.ID
		contact.Name = strings.TrimSpace(contact.Name)
		contact.ContactUserID = strings.TrimSpace(contact.ContactUserID)

		if errs := validate.Struct(contact); errs != nil {
			writeResponse(rw, ResponsePayload{Errors: validationErrors(errs)}, http.StatusBadRequest)
			return
		}

		if contact.ContactUserID == user.ID {
			writeError(rw, fmt.Errorf("you cannot add yourself as a contact"), http.StatusBadRequest)
			return
		}

		contacts = append(contacts, contact)
	}

	err := models.CreateContacts(contacts)
	if err != nil {
		writeError(rw, err, http.StatusInternalServerError)
		return
	}

	for i := range contacts {
		s.publish(backend.ContactsTable, backend.InsertEvent, contacts[i], nil)
	}

	writeData(rw, contacts, http.StatusCreated)
}

func (s *Server) upsertUserSettings(rw http.ResponseWriter, r *http.Request, rows []json.RawMessage) {
	user := requestUser(r)

	if len(rows) != 1 {
		writeError(rw, fmt.Errorf("exactly one settings row is expected"), http.StatusBadRequest)
		return
	}

	settings := models.UserSettings{}
	if err := json.Unmarshal(rows[0], &settings); err != nil {
		writeError(rw, err, http.StatusBadRequest)
		return
	}
	settings.UserID = user.ID

	created, err := models.UpsertUserSettings(&settings)
	if err != nil {
		writeError(rw, err, http.StatusInternalServerError)
		return
	}

	eventType, status := backend.UpdateEvent, http.StatusOK
	if created {
		eventType, status = backend.InsertEvent, http.StatusCreated
	}
	s.publish(backend.UserSettingsTable, eventType, settings, nil)

	writeData(rw, []models.UserSettings{settings}, status)
}

func (s *Server) insertSosAlerts(rw http.ResponseWriter, r *http.Request, rows []json.RawMessage) {
	user := requestUser(r)
	alerts := make([]models.SosAlert, 0, len(rows))

	for _, raw := range rows {
		alert := models.SosAlert{}
		if err := json.Unmarshal(raw, &alert); err != nil {
			writeError(rw, err, http.StatusBadRequest)
			return
		}

		alert.ID = ""
		alert.SenderUserID = user.ID
		if strings.TrimSpace(alert.SenderName) == "" {
			alert.SenderName = user.Name
		}

		if errs := validate.Struct(alert); errs != nil {
			writeResponse(rw, ResponsePayload{Errors: validationErrors(errs)}, http.StatusBadRequest)
			return
		}

		alerts = append(alerts, alert)
	}

	// All or nothing, so a failed batch never notifies only some contacts
	err := models.CreateSosAlerts(alerts)
	if err != nil {
		writeError(rw, err, http.StatusInternalServerError)
		return
	}
	metrics.SosAlertsCreated.Add(float64(len(alerts)))

	for i := range alerts {
		s.publish(backend.SosAlertsTable, backend.InsertEvent, alerts[i], nil)

		err = s.workerPool.Perform(work.JobParams{
			Name:    fmt.Sprintf("%v:%v", SMS_SOS_ALERT_JOB, alerts[i].ID),
			Handler: SMS_SOS_ALERT_JOB,
			Unique:  true,
			Args:    map[string]interface{}{"alert_id": alerts[i].ID},
		})
		if err != nil {
			logg.Errorf("unable to queue sms for alert %v: %v", alerts[i].ID, err)
		}
	}

	writeData(rw, alerts, http.StatusCreated)
}

func (s *Server) publish(table string, eventType backend.EventType, newRow, oldRow interface{}) {
	if err := s.broker.Publish(table, eventType, newRow, oldRow); err != nil {
		logg.Errorf("unable to publish %v on %v: %v", eventType, table, err)
	}
}
