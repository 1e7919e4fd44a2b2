package httpapi

import (
	"net/http"
)

func (h *Handler) handleSearchBooks(w http.ResponseWriter, r *http.Request) error {
	res, err := h.query.SearchBooks(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleGetBook(w http.ResponseWriter, r *http.Request) error {
	book, err := h.query.GetBook(r.Context(), r.PathValue("isbn"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, book)
}
