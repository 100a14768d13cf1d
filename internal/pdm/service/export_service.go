package service

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"

	"github.com/bitfantasy/vega/internal/apperr"
	"github.com/bitfantasy/vega/internal/pdm/repository"
	"github.com/xuri/excelize/v2"
)

// ExportService 导出服务：零件台账与物料清单导出为 xlsx / csv
type ExportService struct {
	partSvc *PartService
	asmSvc  *AssemblyService
}

func NewExportService(partSvc *PartService, asmSvc *AssemblyService) *ExportService {
	return &ExportService{partSvc: partSvc, asmSvc: asmSvc}
}

var partSheetHeaders = []string{"编码", "名称", "描述", "材料", "供应商", "重要度", "生命周期", "版本数", "最新版本", "最新版本状态"}

// ExportPartsXLSX 按当前过滤条件导出零件台账
func (s *ExportService) ExportPartsXLSX(ctx context.Context, f repository.ItemFilter) (*excelize.File, error) {
	items, err := s.partSvc.List(ctx, f)
	if err != nil {
		return nil, err
	}

	file := excelize.NewFile()
	sheet := "零件"
	file.SetSheetName("Sheet1", sheet)

	for i, h := range partSheetHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		file.SetCellValue(sheet, cell, h)
	}

	for row, item := range items {
		values := []interface{}{
			item.Code, item.Name, item.Description, item.Material, item.Vendor,
			item.Criticality, item.LifecycleState,
			item.VersionCount, item.LatestVersionLabel, item.LatestVersionStatus,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			file.SetCellValue(sheet, cell, v)
		}
	}
	return file, nil
}

// WritePartsCSV 以 CSV 写出零件台账
func (s *ExportService) WritePartsCSV(ctx context.Context, f repository.ItemFilter, w io.Writer) error {
	items, err := s.partSvc.List(ctx, f)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(partSheetHeaders); err != nil {
		return apperr.Internal("写出CSV失败", err)
	}
	for _, item := range items {
		record := []string{
			item.Code, item.Name, item.Description, item.Material, item.Vendor,
			item.Criticality, item.LifecycleState,
			strconv.Itoa(item.VersionCount), item.LatestVersionLabel, item.LatestVersionStatus,
		}
		if err := cw.Write(record); err != nil {
			return apperr.Internal("写出CSV失败", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return apperr.Internal("写出CSV失败", err)
	}
	return nil
}

var bomHeaders = []string{"零件编码", "零件名称", "材料", "供应商", "版本", "版本状态"}

// ExportBOMXLSX 导出装配体版本的物料清单
func (s *ExportService) ExportBOMXLSX(ctx context.Context, assemblyID, versionID string) (*excelize.File, error) {
	lines, err := s.asmSvc.GetBOM(ctx, assemblyID, versionID)
	if err != nil {
		return nil, err
	}

	file := excelize.NewFile()
	sheet := "BOM"
	file.SetSheetName("Sheet1", sheet)

	for i, h := range bomHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		file.SetCellValue(sheet, cell, h)
	}
	for row, line := range lines {
		values := []interface{}{
			line.PartCode, line.PartName, line.Material, line.Vendor,
			line.VersionLabel, line.Status,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			file.SetCellValue(sheet, cell, v)
		}
	}
	return file, nil
}

// WriteBOMCSV 以 CSV 写出装配体版本的物料清单
func (s *ExportService) WriteBOMCSV(ctx context.Context, assemblyID, versionID string, w io.Writer) error {
	lines, err := s.asmSvc.GetBOM(ctx, assemblyID, versionID)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(bomHeaders); err != nil {
		return apperr.Internal("写出CSV失败", err)
	}
	for _, line := range lines {
		record := []string{
			line.PartCode, line.PartName, line.Material, line.Vendor,
			line.VersionLabel, line.Status,
		}
		if err := cw.Write(record); err != nil {
			return apperr.Internal("写出CSV失败", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return apperr.Internal("写出CSV失败", err)
	}
	return nil
}
