package graph

import (
	"errors"

	"github.com/shiv669/echo-core-go/internal/models"
	"gorm.io/gorm"
)

type Service struct{ db *gorm.DB }

func NewService(db *gorm.DB) *Service { return &Service{db: db} }

// Snapshot loads every node ordered by id. Edges are computed over the full
// population, so there is no windowed variant of this query.
func (s *Service) Snapshot() ([]models.NodeModel, error) {
	nodes := make([]models.NodeModel, 0)
	err := s.db.Order("id ASC").Find(&nodes).Error
	return nodes, err
}

func (s *Service) GetByID(id int64) (*models.NodeModel, error) {
	var node models.NodeModel
	if err := s.db.First(&node, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &node, nil
}

func (s *Service) Count() (int64, error) {
	var total int64
	err := s.db.Model(&models.NodeModel{}).Count(&total).Error
	return total, err
}
