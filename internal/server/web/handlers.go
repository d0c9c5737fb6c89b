package web

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/cargohold/internal/apierror"
	"github.com/dmitrijs2005/cargohold/internal/cargo"
)

// maxPublishBytes caps the size of one publish payload.
const maxPublishBytes = 64 << 20

func (s *Server) handleIndexConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.crates.IndexConfig())
}

func (s *Server) handleIndexFile(w http.ResponseWriter, r *http.Request) {
	data, err := s.crates.GetIndexFile(r.Context(), r.PathValue("path"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(data)
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPublishBytes))
	if err != nil {
		s.writeError(w, r, apierror.Specialize(apierror.InvalidRequest(), "failed to read the upload payload"))
		return
	}

	result, err := s.crates.Publish(r.Context(), authFrom(r), payload)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	results, err := s.crates.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleCrateInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.crates.GetInfo(r.Context(), r.PathValue("crate"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	data, err := s.crates.Download(r.Context(), r.PathValue("crate"), r.PathValue("version"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}

func (s *Server) handleYank(w http.ResponseWriter, r *http.Request) {
	result, err := s.crates.Yank(r.Context(), authFrom(r), r.PathValue("crate"), r.PathValue("version"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleUnyank(w http.ResponseWriter, r *http.Request) {
	result, err := s.crates.Unyank(r.Context(), authFrom(r), r.PathValue("crate"), r.PathValue("version"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCheckDeps(w http.ResponseWriter, r *http.Request) {
	hasOutdated, err := s.crates.CheckDeps(r.Context(), authFrom(r), r.PathValue("crate"), r.PathValue("version"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"hasOutdated": hasOutdated})
}

func (s *Server) handleListOwners(w http.ResponseWriter, r *http.Request) {
	result, err := s.crates.ListOwners(r.Context(), r.PathValue("crate"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAddOwners(w http.ResponseWriter, r *http.Request) {
	var query cargo.OwnersChangeQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.writeError(w, r, apierror.Specialize(apierror.InvalidRequest(), "failed to parse the owners query"))
		return
	}
	result, err := s.crates.AddOwners(r.Context(), authFrom(r), r.PathValue("crate"), query.Users)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRemoveOwners(w http.ResponseWriter, r *http.Request) {
	var query cargo.OwnersChangeQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.writeError(w, r, apierror.Specialize(apierror.InvalidRequest(), "failed to parse the owners query"))
		return
	}
	result, err := s.crates.RemoveOwners(r.Context(), authFrom(r), r.PathValue("crate"), query.Users)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type createTokenRequest struct {
	Name     string `json:"name"`
	CanWrite bool   `json:"canWrite"`
	CanAdmin bool   `json:"canAdmin"`
}

func (s *Server) handleListUserTokens(w http.ResponseWriter, r *http.Request) {
	result, err := s.tokens.ListUserTokens(r.Context(), authFrom(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCreateUserToken(w http.ResponseWriter, r *http.Request) {
	var req createTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, apierror.Specialize(apierror.InvalidRequest(), "failed to parse the token request"))
		return
	}
	result, err := s.tokens.CreateUserToken(r.Context(), authFrom(r), req.Name, req.CanWrite, req.CanAdmin)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRevokeUserToken(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, r, apierror.Specialize(apierror.InvalidRequest(), "token id must be an integer"))
		return
	}
	if err := s.tokens.RevokeUserToken(r.Context(), authFrom(r), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cargo.NewYesNoResult())
}

func (s *Server) handleListGlobalTokens(w http.ResponseWriter, r *http.Request) {
	result, err := s.tokens.ListGlobalTokens(r.Context(), authFrom(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCreateGlobalToken(w http.ResponseWriter, r *http.Request) {
	var req createTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, apierror.Specialize(apierror.InvalidRequest(), "failed to parse the token request"))
		return
	}
	result, err := s.tokens.CreateGlobalToken(r.Context(), authFrom(r), req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRevokeGlobalToken(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, r, apierror.Specialize(apierror.InvalidRequest(), "token id must be an integer"))
		return
	}
	if err := s.tokens.RevokeGlobalToken(r.Context(), authFrom(r), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cargo.NewYesNoResult())
}

type createUserRequest struct {
	Email string `json:"email"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Roles string `json:"roles"`
}

type updateUserRequest struct {
	IsActive *bool   `json:"isActive"`
	Roles    *string `json:"roles"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	result, err := s.users.ListUsers(r.Context(), authFrom(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, apierror.Specialize(apierror.InvalidRequest(), "failed to parse the user request"))
		return
	}
	result, err := s.users.CreateUser(r.Context(), authFrom(r), req.Email, req.Login, req.Name, req.Roles)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, r, apierror.Specialize(apierror.InvalidRequest(), "user id must be an integer"))
		return
	}
	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, apierror.Specialize(apierror.InvalidRequest(), "failed to parse the user request"))
		return
	}

	authn := authFrom(r)
	if req.IsActive != nil {
		if err := s.users.SetUserActive(r.Context(), authn, id, *req.IsActive); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	if req.Roles != nil {
		if err := s.users.UpdateUserRoles(r.Context(), authn, id, *req.Roles); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, cargo.NewYesNoResult())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	result, err := s.stats.GetCratesStats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
