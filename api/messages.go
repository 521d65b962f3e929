package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/chain-credentials/issuer-api/models"
	"github.com/chain-credentials/issuer-api/services"
	"github.com/chain-credentials/issuer-api/statuslist"
)

type response struct {
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type decodingError struct {
	status int
	msg    string
}

func (br *decodingError) Error() string {
	return br.msg
}

type IssueCredentialRequest struct {
	Owner     string                 `json:"owner"`
	Issuer    string                 `json:"issuer"`
	Claims    map[string]interface{} `json:"claims"`
	ExpiresAt int64                  `json:"expiresAt,omitempty"`
}

type UpdateStatusRequest struct {
	Status    string `json:"status"`
	AssetOnly bool   `json:"assetOnly,omitempty"`
}

type CredentialResponse struct {
	ID               string `json:"id"`
	Owner            string `json:"owner"`
	Issuer           string `json:"issuer"`
	StatusListFileID string `json:"statusListFileId"`
	StatusListIndex  int64  `json:"statusListIndex"`
	AssetSerial      string `json:"assetSerial"`
	InternalStatus   string `json:"internalStatus"`
	ChainStatus      string `json:"chainStatus"`
	ExpiresAt        int64  `json:"expiresAt"`
	CreatedAt        int64  `json:"createdAt"`
	UpdatedAt        int64  `json:"updatedAt"`
}

func newCredentialResponse(cred *models.Credential) CredentialResponse {
	return CredentialResponse{
		ID:               cred.ID,
		Owner:            cred.Owner,
		Issuer:           cred.Issuer,
		StatusListFileID: cred.StatusListFileID,
		StatusListIndex:  cred.StatusListIndex,
		AssetSerial:      cred.AssetSerial,
		InternalStatus:   string(cred.InternalStatus),
		ChainStatus:      string(cred.ChainStatus),
		ExpiresAt:        cred.ExpirationDate.Unix(),
		CreatedAt:        cred.CreatedAt.Unix(),
		UpdatedAt:        cred.UpdatedAt.Unix(),
	}
}

func (r *IssueCredentialRequest) expiration() time.Time {
	if r.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(r.ExpiresAt, 0)
}

func readJSONRequest(w http.ResponseWriter, r *http.Request, req interface{}) error {
	contentType := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "application/json" {
		const msg = "Content-Type is not application/json"
		return &decodingError{status: http.StatusUnsupportedMediaType, msg: msg}
	}

	// Limit the size of the request body to 64 KB; claims can be sizeable.
	r.Body = http.MaxBytesReader(w, r.Body, 64*1024)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err = dec.Decode(&req)
	if err != nil || dec.Decode(&struct{}{}) != io.EOF {
		const msg = "invalid or multiple JSON objects in request body"
		return &decodingError{status: http.StatusBadRequest, msg: msg}
	}

	return nil
}

func writeJSONResponse(w http.ResponseWriter, code int, data interface{}, err string) error {
	resp, merr := json.Marshal(response{Data: data, Error: err})
	if merr != nil {
		return merr
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, e := w.Write(resp)
	return e
}

func writeJSONError(w http.ResponseWriter, err error) error {
	var de *decodingError
	switch {
	case errors.As(err, &de):
		return writeJSONResponse(w, de.status, nil, de.msg)
	case errors.Is(err, &services.ValidationError{}):
		return writeJSONResponse(w, http.StatusBadRequest, nil, err.Error())
	case errors.Is(err, &services.NotFoundError{}):
		return writeJSONResponse(w, http.StatusNotFound, nil, err.Error())
	case errors.Is(err, &services.TransactionError{}):
		return writeJSONResponse(w, http.StatusBadGateway, nil, err.Error())
	case errors.Is(err, &services.RemoteOperationError{}):
		return writeJSONResponse(w, http.StatusBadGateway, nil, err.Error())
	case errors.Is(err, &statuslist.DecodeError{}):
		return writeJSONResponse(w, http.StatusInternalServerError, nil, err.Error())
	default:
		return writeJSONResponse(w, http.StatusInternalServerError, nil, "internal server error")
	}
}
