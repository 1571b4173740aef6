package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vaidashi/flower-shop-api/internal/models"
	"github.com/vaidashi/flower-shop-api/internal/service"
	apperrors "github.com/vaidashi/flower-shop-api/pkg/errors"
)

// parseBouquetQuery reads the catalog search parameters
func parseBouquetQuery(r *http.Request) (service.BouquetQuery, error) {
	q := r.URL.Query()
	query := service.BouquetQuery{
		Search: strings.TrimSpace(q.Get("search")),
		SortBy: q.Get("sortBy"),
		Page:   queryInt(r, "page"),
		Limit:  queryInt(r, "limit"),
	}
	details := map[string]string{}

	if raw := q.Get("category"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			details["category"] = "must be a positive integer"
		} else {
			query.CategoryID = &id
		}
	}

	for name, dst := range map[string]**decimal.Decimal{
		"minPrice": &query.MinPrice,
		"maxPrice": &query.MaxPrice,
	} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		price, err := decimal.NewFromString(raw)
		if err != nil || price.IsNegative() {
			details[name] = "must be a non-negative number"
			continue
		}
		*dst = &price
	}

	if len(details) > 0 {
		return query, apperrors.NewValidationError(details)
	}

	return query, nil
}

// getBouquetsHandler searches the available bouquets
func (s *Server) getBouquetsHandler(w http.ResponseWriter, r *http.Request) {
	query, err := parseBouquetQuery(r)

	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	page, err := s.catalog.ListBouquets(r.Context(), query)

	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: page})
}

// getBouquetHandler returns one bouquet and counts the view
func (s *Server) getBouquetHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)

	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	bouquet, err := s.catalog.GetBouquet(r.Context(), id)

	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: bouquet})
}

func (s *Server) createBouquetHandler(w http.ResponseWriter, r *http.Request) {
	var input service.BouquetInput

	if err := decodeJSON(r, w, &input); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	bouquet, err := s.catalog.CreateBouquet(r.Context(), input)

	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: bouquet})
}

// updateBouquetHandler applies a partial update. Fields missing from the
// body keep their value.
func (s *Server) updateBouquetHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)

	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	var patch models.BouquetPatch

	if err := decodeJSON(r, w, &patch); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	bouquet, err := s.catalog.UpdateBouquet(r.Context(), id, patch)

	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: bouquet})
}

func (s *Server) deleteBouquetHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)

	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	if err := s.catalog.DeleteBouquet(r.Context(), id); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    map[string]interface{}{"message": "Bouquet deleted successfully", "id": id},
	})
}

// getCategoriesHandler lists the active categories
func (s *Server) getCategoriesHandler(w http.ResponseWriter, r *http.Request) {
	categories, err := s.catalog.ListCategories(r.Context())

	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: categories})
}

func (s *Server) createCategoryHandler(w http.ResponseWriter, r *http.Request) {
	var input service.CategoryInput

	if err := decodeJSON(r, w, &input); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	category, err := s.catalog.CreateCategory(r.Context(), input)

	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: category})
}

func (s *Server) updateCategoryHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)

	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	var patch models.CategoryPatch

	if err := decodeJSON(r, w, &patch); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	category, err := s.catalog.UpdateCategory(r.Context(), id, patch)

	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: category})
}

// deleteCategoryHandler removes a category nothing is filed under
func (s *Server) deleteCategoryHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)

	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	if err := s.catalog.DeleteCategory(r.Context(), id); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    map[string]interface{}{"message": "Category deleted successfully", "id": id},
	})
}
