package repository

import (
	"context"

	"github.com/bitfantasy/vega/internal/pdm/entity"
	"gorm.io/gorm"
)

// CompositionRepository 组成关系仓库（装配体版本 → 冻结零件版本）
type CompositionRepository struct {
	db *gorm.DB
}

func NewCompositionRepository(db *gorm.DB) *CompositionRepository {
	return &CompositionRepository{db: db}
}

// ListEdges 装配体版本的全部组成边
func (r *CompositionRepository) ListEdges(ctx context.Context, assemblyVersionID string) ([]entity.AssemblyPart, error) {
	var edges []entity.AssemblyPart
	err := r.db.WithContext(ctx).
		Where("assembly_version_id = ?", assemblyVersionID).
		Find(&edges).Error
	return edges, err
}

// BOM 装配体版本的物料清单（联查零件与版本）
func (r *CompositionRepository) BOM(ctx context.Context, assemblyVersionID string) ([]entity.BOMLine, error) {
	var lines []entity.BOMLine
	err := r.db.WithContext(ctx).Raw(`
		SELECT p.id AS part_id, p.code AS part_code, p.name AS part_name,
		       p.material, p.vendor,
		       pv.id AS version_id, pv.version_label, pv.status
		FROM assembly_parts ap
		JOIN part_versions pv ON pv.id = ap.part_version_id
		JOIN parts p ON p.id = pv.part_id
		WHERE ap.assembly_version_id = ?
		ORDER BY p.code ASC`, assemblyVersionID).
		Scan(&lines).Error
	return lines, err
}

// ImpactByPart 反查：引用了该零件任一版本的所有装配体版本
func (r *CompositionRepository) ImpactByPart(ctx context.Context, partID string) ([]entity.ImpactLine, error) {
	var lines []entity.ImpactLine
	err := r.db.WithContext(ctx).Raw(`
		SELECT a.id AS assembly_id, a.code AS assembly_code, a.name AS assembly_name,
		       av.id AS assembly_version_id, av.version_label,
		       pv.id AS part_version_id, pv.version_label AS part_version_label
		FROM assembly_parts ap
		JOIN part_versions pv ON pv.id = ap.part_version_id
		JOIN assembly_versions av ON av.id = ap.assembly_version_id
		JOIN assemblies a ON a.id = av.assembly_id
		WHERE pv.part_id = ?
		ORDER BY a.code ASC, av.version_label ASC`, partID).
		Scan(&lines).Error
	return lines, err
}

// BlockingAssemblyCodes 引用了这批零件任一版本的装配体编码（删除前检查用）
func (r *CompositionRepository) BlockingAssemblyCodes(ctx context.Context, partIDs []string) ([]string, error) {
	var codes []string
	if len(partIDs) == 0 {
		return codes, nil
	}
	err := r.db.WithContext(ctx).Raw(`
		SELECT DISTINCT a.code
		FROM assembly_parts ap
		JOIN part_versions pv ON pv.id = ap.part_version_id
		JOIN assembly_versions av ON av.id = ap.assembly_version_id
		JOIN assemblies a ON a.id = av.assembly_id
		WHERE pv.part_id IN ?
		ORDER BY a.code ASC`, partIDs).
		Scan(&codes).Error
	return codes, err
}

// EdgeExistsForPartVersion 某零件版本是否被任何装配体版本引用（回滚前检查用）
func (r *CompositionRepository) EdgeExistsForPartVersion(ctx context.Context, partVersionID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.AssemblyPart{}).
		Where("part_version_id = ?", partVersionID).
		Count(&count).Error
	return count > 0, err
}
