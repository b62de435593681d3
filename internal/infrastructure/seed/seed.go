package seed

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/garyjia/stock-approval/internal/application/port"
	"github.com/garyjia/stock-approval/internal/domain/entity"
)

// File is the YAML seed document
type File struct {
	Workflows []Workflow    `yaml:"workflows"`
	Catalog   []CatalogItem `yaml:"catalog"`
}

// Workflow seeds one workflow definition with its approvers
type Workflow struct {
	Name        string     `yaml:"name"`
	RequestType string     `yaml:"request_type"`
	Description string     `yaml:"description"`
	Active      *bool      `yaml:"active"`
	Approvers   []Approver `yaml:"approvers"`
}

// Approver seeds one workflow approver
type Approver struct {
	UserID      string `yaml:"user_id"`
	UserName    string `yaml:"user_name"`
	Role        string `yaml:"role"`
	Level       int    `yaml:"level"`
	CanApprove  bool   `yaml:"can_approve"`
	CanForward  bool   `yaml:"can_forward"`
	CanFinalize bool   `yaml:"can_finalize"`
}

// CatalogItem seeds an item master and its opening stock
type CatalogItem struct {
	ItemCode          string `yaml:"item_code"`
	Nomenclature      string `yaml:"nomenclature"`
	Description       string `yaml:"description"`
	Specifications    string `yaml:"specifications"`
	UnitOfMeasurement string `yaml:"unit"`
	Category          string `yaml:"category"`
	Subcategory       string `yaml:"subcategory"`
	OpeningStock      int    `yaml:"opening_stock"`
	ReorderLevel      int    `yaml:"reorder_level"`
}

// Result counts what Apply created
type Result struct {
	Workflows int
	Approvers int
	Items     int
	Skipped   int
}

// WorkflowAdmin is the part of the registry the seeder writes through
type WorkflowAdmin interface {
	ListWorkflows(ctx context.Context) ([]*entity.WorkflowDefinition, error)
	CreateWorkflow(ctx context.Context, wf *entity.WorkflowDefinition) error
	AddApprover(ctx context.Context, approver *entity.WorkflowApprover) error
}

// Load reads and parses a seed file
func Load(path string) (*File, error) {
	// #nosec G304 -- path comes from operator configuration.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and checks a seed document
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}

	for i, wf := range f.Workflows {
		if wf.Name == "" || wf.RequestType == "" {
			return nil, fmt.Errorf("workflow %d: name and request_type are required", i)
		}
		if len(wf.Approvers) > 0 && entity.FirstFinalizer(toApprovers(wf.Approvers, 0)) == nil {
			return nil, fmt.Errorf("workflow %q: at least one approver must be able to finalize", wf.Name)
		}
	}
	for i, item := range f.Catalog {
		if item.ItemCode == "" || item.Nomenclature == "" {
			return nil, fmt.Errorf("catalog item %d: item_code and nomenclature are required", i)
		}
		if item.OpeningStock < 0 {
			return nil, fmt.Errorf("catalog item %s: opening_stock cannot be negative", item.ItemCode)
		}
	}

	return &f, nil
}

// Seeder writes a seed document into an empty or partially seeded database.
// Existing workflows (by name and request type) and item codes are skipped.
type Seeder struct {
	registry  WorkflowAdmin
	stock     port.StockRepository
	logs      port.InventoryLogRepository
	txManager port.TransactionManager
	logger    *zap.Logger
}

// NewSeeder creates a Seeder
func NewSeeder(
	registry WorkflowAdmin,
	stock port.StockRepository,
	logs port.InventoryLogRepository,
	txManager port.TransactionManager,
	logger *zap.Logger,
) *Seeder {
	return &Seeder{
		registry:  registry,
		stock:     stock,
		logs:      logs,
		txManager: txManager,
		logger:    logger,
	}
}

// Apply creates everything in f that does not exist yet
func (s *Seeder) Apply(ctx context.Context, f *File) (*Result, error) {
	res := &Result{}

	existing, err := s.registry.ListWorkflows(ctx)
	if err != nil {
		return nil, err
	}

	for _, wf := range f.Workflows {
		if hasWorkflow(existing, wf) {
			res.Skipped++
			s.logger.Info("Workflow already seeded", zap.String("name", wf.Name))
			continue
		}
		if err := s.seedWorkflow(ctx, wf, res); err != nil {
			return nil, fmt.Errorf("seed workflow %q: %w", wf.Name, err)
		}
	}

	for _, item := range f.Catalog {
		created, err := s.seedItem(ctx, item)
		if err != nil {
			return nil, fmt.Errorf("seed item %s: %w", item.ItemCode, err)
		}
		if created {
			res.Items++
		} else {
			res.Skipped++
		}
	}

	s.logger.Info("Seed applied",
		zap.Int("workflows", res.Workflows),
		zap.Int("approvers", res.Approvers),
		zap.Int("items", res.Items),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

func (s *Seeder) seedWorkflow(ctx context.Context, wf Workflow, res *Result) error {
	active := true
	if wf.Active != nil {
		active = *wf.Active
	}

	return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		def := &entity.WorkflowDefinition{
			WorkflowName: wf.Name,
			RequestType:  wf.RequestType,
			Description:  wf.Description,
			IsActive:     active,
		}
		if err := s.registry.CreateWorkflow(txCtx, def); err != nil {
			return err
		}

		for _, a := range toApprovers(wf.Approvers, def.ID) {
			if err := s.registry.AddApprover(txCtx, a); err != nil {
				return fmt.Errorf("approver %s: %w", a.UserID, err)
			}
			res.Approvers++
		}
		res.Workflows++
		return nil
	})
}

func (s *Seeder) seedItem(ctx context.Context, item CatalogItem) (bool, error) {
	found, err := s.stock.GetItemMasterByCode(ctx, item.ItemCode)
	if err != nil {
		return false, err
	}
	if found != nil {
		return false, nil
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		master := &entity.ItemMaster{
			ItemCode:          item.ItemCode,
			Nomenclature:      item.Nomenclature,
			Description:       item.Description,
			Specifications:    item.Specifications,
			UnitOfMeasurement: item.UnitOfMeasurement,
			Category:          item.Category,
			Subcategory:       item.Subcategory,
			IsActive:          true,
		}
		if err := s.stock.CreateItemMaster(txCtx, master); err != nil {
			return err
		}

		inventoryID, err := s.stock.CreateStock(txCtx, master.ID, item.OpeningStock, item.ReorderLevel)
		if err != nil {
			return err
		}

		if item.OpeningStock == 0 {
			return nil
		}
		return s.logs.Create(txCtx, &entity.InventoryLog{
			InventoryID:     inventoryID,
			MovementType:    entity.MovementAdjust,
			Reference:       "seed",
			QuantityBefore:  0,
			QuantityAfter:   item.OpeningStock,
			QuantityChanged: item.OpeningStock,
			PerformedBy:     "seed",
			Reason:          "opening stock",
		})
	})
	return err == nil, err
}

func hasWorkflow(existing []*entity.WorkflowDefinition, wf Workflow) bool {
	for _, e := range existing {
		if e.WorkflowName == wf.Name && e.RequestType == wf.RequestType {
			return true
		}
	}
	return false
}

func toApprovers(in []Approver, workflowID int64) []*entity.WorkflowApprover {
	out := make([]*entity.WorkflowApprover, 0, len(in))
	for _, a := range in {
		out = append(out, &entity.WorkflowApprover{
			WorkflowID:    workflowID,
			UserID:        a.UserID,
			UserName:      a.UserName,
			ApproverRole:  a.Role,
			ApproverLevel: a.Level,
			CanApprove:    a.CanApprove,
			CanForward:    a.CanForward,
			CanFinalize:   a.CanFinalize,
		})
	}
	return out
}
