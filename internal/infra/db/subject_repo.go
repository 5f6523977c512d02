package db

import (
	"context"
	"time"

	"github.com/Stockmasterflex/legendwatch/internal/domain"
	"gorm.io/gorm"
)

type SubjectRepository struct {
	db *gorm.DB
}

func NewSubjectRepository(db *gorm.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

func (r *SubjectRepository) Create(ctx context.Context, subject *domain.WatchedSubject) error {
	model := mapSubjectToModel(*subject)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return err
	}
	subject.ID = model.ID
	subject.CreatedAt = model.CreatedAt
	subject.UpdatedAt = model.UpdatedAt
	return nil
}

func (r *SubjectRepository) GetByID(ctx context.Context, subjectID uint) (*domain.WatchedSubject, error) {
	var model subjectModel
	if err := r.db.WithContext(ctx).First(&model, subjectID).Error; err != nil {
		return nil, notFound(err)
	}
	subject := mapSubjectToDomain(model)
	return &subject, nil
}

func (r *SubjectRepository) ListByOwner(ctx context.Context, ownerID uint) ([]domain.WatchedSubject, error) {
	var models []subjectModel
	if err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("id").Find(&models).Error; err != nil {
		return nil, err
	}
	return mapSubjectsToDomain(models), nil
}

func (r *SubjectRepository) ListActive(ctx context.Context) ([]domain.WatchedSubject, error) {
	var models []subjectModel
	if err := r.db.WithContext(ctx).
		Where("status IN ?", []string{string(domain.StatusWatching), string(domain.StatusBreakingOut)}).
		Order("symbol, id").
		Find(&models).Error; err != nil {
		return nil, err
	}
	return mapSubjectsToDomain(models), nil
}

func (r *SubjectRepository) UpdateStatus(ctx context.Context, subjectID uint, from, to domain.SubjectStatus) error {
	result := r.db.WithContext(ctx).Model(&subjectModel{}).
		Where("id = ? AND status = ?", subjectID, string(from)).
		Update("status", string(to))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}
	var count int64
	if err := r.db.WithContext(ctx).Model(&subjectModel{}).Where("id = ?", subjectID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return domain.ErrNotFound
	}
	return domain.ErrStaleStatus
}

func (r *SubjectRepository) SetMutedUntil(ctx context.Context, subjectID uint, until *time.Time) error {
	return affected(r.db.WithContext(ctx).Model(&subjectModel{}).Where("id = ?", subjectID).Update("muted_until", until))
}

func (r *SubjectRepository) MarkAlerted(ctx context.Context, subjectID uint, at time.Time) error {
	return affected(r.db.WithContext(ctx).Model(&subjectModel{}).Where("id = ?", subjectID).Update("last_alerted_at", at))
}

func (r *SubjectRepository) Rearm(ctx context.Context, subjectID uint) error {
	return affected(r.db.WithContext(ctx).Model(&subjectModel{}).Where("id = ?", subjectID).Updates(map[string]interface{}{
		"status":          string(domain.StatusWatching),
		"last_alerted_at": nil,
	}))
}

func (r *SubjectRepository) Delete(ctx context.Context, subjectID uint) error {
	return affected(r.db.WithContext(ctx).Delete(&subjectModel{}, subjectID))
}

func mapSubjectToModel(subject domain.WatchedSubject) subjectModel {
	return subjectModel{
		ID:            subject.ID,
		OwnerID:       subject.OwnerID,
		Symbol:        subject.Symbol,
		Status:        string(subject.Status),
		TargetEntry:   nullDecimal(subject.TargetEntry),
		TargetStop:    nullDecimal(subject.TargetStop),
		TargetPrice:   nullDecimal(subject.TargetPrice),
		Frequency:     string(subject.Frequency),
		LastAlertedAt: subject.LastAlertedAt,
		MutedUntil:    subject.MutedUntil,
	}
}

func mapSubjectToDomain(model subjectModel) domain.WatchedSubject {
	return domain.WatchedSubject{
		ID:            model.ID,
		OwnerID:       model.OwnerID,
		Symbol:        model.Symbol,
		Status:        domain.SubjectStatus(model.Status),
		TargetEntry:   decimalPtr(model.TargetEntry),
		TargetStop:    decimalPtr(model.TargetStop),
		TargetPrice:   decimalPtr(model.TargetPrice),
		Frequency:     domain.Frequency(model.Frequency),
		LastAlertedAt: model.LastAlertedAt,
		MutedUntil:    model.MutedUntil,
		CreatedAt:     model.CreatedAt,
		UpdatedAt:     model.UpdatedAt,
		DeletedAt:     deletedAt(model.DeletedAt),
	}
}

func mapSubjectsToDomain(models []subjectModel) []domain.WatchedSubject {
	subjects := make([]domain.WatchedSubject, 0, len(models))
	for _, model := range models {
		subjects = append(subjects, mapSubjectToDomain(model))
	}
	return subjects
}
