package service

import (
	"encoding/json"
	"time"

	"talkinghead/internal/domain"
	"talkinghead/internal/logging"
	"talkinghead/internal/models"
	"talkinghead/internal/repository"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// ScenarioService registers scenarios produced by the generation flow.
type ScenarioService struct {
	scenarios   *repository.ScenarioRepository
	freePerUser int64
	maxPrice    int64
	log         *zap.Logger
	now         func() time.Time
}

func NewScenarioService(scenarios *repository.ScenarioRepository, freePerUser, maxPrice int64, log *zap.Logger) *ScenarioService {
	return &ScenarioService{
		scenarios:   scenarios,
		freePerUser: freePerUser,
		maxPrice:    maxPrice,
		log:         logging.OrNop(log),
		now:         time.Now,
	}
}

type RegisterScenarioRequest struct {
	OwnerID    *uint
	ListPrice  int64
	Parameters json.RawMessage
	IsFree     *bool // nil: free while the owner is within the free quota
}

// Register stores a new scenario. Free scenarios are settled on creation.
func (s *ScenarioService) Register(req RegisterScenarioRequest) (*models.Scenario, error) {
	if req.ListPrice < 0 {
		return nil, domain.ErrInvalidAmount
	}
	if s.maxPrice > 0 && req.ListPrice > s.maxPrice {
		return nil, domain.Validationf("list_price exceeds maximum")
	}
	if len(req.Parameters) > 0 && !json.Valid(req.Parameters) {
		return nil, domain.Validationf("parameters must be valid JSON")
	}

	free := false
	switch {
	case req.IsFree != nil:
		free = *req.IsFree
	case req.OwnerID != nil && s.freePerUser > 0:
		n, err := s.scenarios.CountByOwner(*req.OwnerID)
		if err != nil {
			return nil, err
		}
		free = n < s.freePerUser
	}

	sc := &models.Scenario{
		OwnerID:    req.OwnerID,
		ListPrice:  req.ListPrice,
		IsFree:     free,
		Parameters: datatypes.JSON(req.Parameters),
	}
	if free {
		now := s.now()
		sc.IsPaid = true
		sc.PaidAt = &now
	}
	if err := s.scenarios.Create(sc); err != nil {
		return nil, err
	}
	fields := []zap.Field{zap.Uint(logging.FieldScenarioID, sc.ID), zap.Bool("is_free", sc.IsFree)}
	if sc.OwnerID != nil {
		fields = append(fields, zap.Uint(logging.FieldUserID, *sc.OwnerID))
	}
	s.log.Info("scenario registered", fields...)
	return sc, nil
}

func (s *ScenarioService) Get(id uint) (*models.Scenario, error) {
	return s.scenarios.GetByID(id)
}
