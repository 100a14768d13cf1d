package service

import (
	"context"
	"strings"

	"github.com/bitfantasy/vega/internal/apperr"
	"github.com/bitfantasy/vega/internal/pdm/entity"
	"github.com/bitfantasy/vega/internal/pdm/repository"
)

const searchLimit = 20

// SearchService 全局搜索：零件、装配体、项目、用户各取前若干条
type SearchService struct {
	partRepo    *repository.PartRepository
	asmRepo     *repository.AssemblyRepository
	projectRepo *repository.ProjectRepository
	userRepo    *repository.UserRepository
}

func NewSearchService(repos *repository.Repositories) *SearchService {
	return &SearchService{
		partRepo:    repos.Part,
		asmRepo:     repos.Assembly,
		projectRepo: repos.Project,
		userRepo:    repos.User,
	}
}

// SearchResult 全局搜索结果
type SearchResult struct {
	Parts      []entity.Part     `json:"parts"`
	Assemblies []entity.Assembly `json:"assemblies"`
	Projects   []entity.Project  `json:"projects"`
	Users      []entity.User     `json:"users"`
}

// Global 按关键字跨实体搜索
func (s *SearchService) Global(ctx context.Context, q string) (*SearchResult, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, apperr.Invalid("搜索关键字不能为空")
	}

	parts, err := s.partRepo.SearchByKeyword(ctx, q, searchLimit)
	if err != nil {
		return nil, apperr.Internal("搜索零件失败", err)
	}
	assemblies, err := s.asmRepo.SearchByKeyword(ctx, q, searchLimit)
	if err != nil {
		return nil, apperr.Internal("搜索装配体失败", err)
	}
	projects, err := s.projectRepo.SearchByKeyword(ctx, q, searchLimit)
	if err != nil {
		return nil, apperr.Internal("搜索项目失败", err)
	}
	users, err := s.userRepo.Search(ctx, q)
	if err != nil {
		return nil, apperr.Internal("搜索用户失败", err)
	}

	return &SearchResult{
		Parts:      parts,
		Assemblies: assemblies,
		Projects:   projects,
		Users:      users,
	}, nil
}
