package services

import (
	"context"
	"fmt"

	"github.com/kagan-sh/kagan-sub004/internal/db/repositories"
	"github.com/kagan-sh/kagan-sub004/internal/models"
	"github.com/oklog/ulid/v2"
)

// ProjectService owns project/repo CRUD and project-repo membership.
type ProjectService struct {
	repos *repositories.Repositories
}

func NewProjectService(repos *repositories.Repositories) *ProjectService {
	return &ProjectService{repos: repos}
}

func (s *ProjectService) Create(ctx context.Context, p *models.Project) (*models.Project, error) {
	if p.ID == "" {
		p.ID = ulid.Make().String()
	}
	if err := s.repos.Projects.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	return p, nil
}

func (s *ProjectService) Get(ctx context.Context, id string) (*models.Project, error) {
	return s.repos.Projects.Get(ctx, id)
}

func (s *ProjectService) List(ctx context.Context) ([]*models.Project, error) {
	return s.repos.Projects.List(ctx)
}

func (s *ProjectService) Open(ctx context.Context, id string) (*models.Project, error) {
	if err := s.repos.Projects.TouchLastOpened(ctx, id); err != nil {
		return nil, err
	}
	return s.repos.Projects.Get(ctx, id)
}

func (s *ProjectService) Delete(ctx context.Context, id string) error {
	return s.repos.Projects.Delete(ctx, id)
}

// AddRepo registers repo with the project; isPrimary marks the repo whose
// default_branch anchors the project's default base branch.
func (s *ProjectService) AddRepo(ctx context.Context, projectID string, repo *models.Repo, isPrimary bool, displayOrder int) (*models.Repo, error) {
	if repo.ID == "" {
		repo.ID = ulid.Make().String()
	}
	if repo.Scripts == nil {
		repo.Scripts = map[string]string{}
	}
	if err := s.repos.Repos.Create(ctx, repo); err != nil {
		return nil, fmt.Errorf("create repo: %w", err)
	}
	if err := s.repos.Repos.AddToProject(ctx, projectID, repo.ID, isPrimary, displayOrder); err != nil {
		return nil, fmt.Errorf("link repo to project: %w", err)
	}
	return repo, nil
}

func (s *ProjectService) GetProjectRepos(ctx context.Context, projectID string) ([]*models.Repo, error) {
	return s.repos.Repos.ListForProject(ctx, projectID)
}

func (s *ProjectService) RemoveRepo(ctx context.Context, projectID, repoID string) error {
	return s.repos.Repos.RemoveFromProject(ctx, projectID, repoID)
}
