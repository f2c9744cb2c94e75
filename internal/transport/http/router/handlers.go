// file: internal/transport/http/router/handlers.go
package router

import (
	"ModelAegis/internal/core/domain"
	"ModelAegis/internal/core/port"
	"ModelAegis/internal/recordquery"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// --- 元数据平面处理器 ---

// listModelsHandler 返回全部已启用的数据模型
func listModelsHandler(catalog port.CatalogService) gin.HandlerFunc {
	return func(c *gin.Context) {
		models, err := catalog.ListModels(c.Request.Context())
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": models})
	}
}

// getModelHandler 返回数据模型描述和它的属性列表。外部列名不会出现在响应中。
func getModelHandler(catalog port.CatalogService) gin.HandlerFunc {
	return func(c *gin.Context) {
		cat, err := catalog.Resolve(c.Request.Context(), c.Param("dataModelId"))
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": gin.H{
			"model":      cat.Model,
			"attributes": cat.Attributes,
		}})
	}
}

// --- 数据平面处理器 ---

// listRecordsParams 是列表接口的保留查询参数，其余参数都被视为属性过滤
type listRecordsParams struct {
	Page          int    `form:"page,default=1" binding:"min=1"`
	Limit         int    `form:"limit,default=20" binding:"min=1,max=100"`
	SortBy        string `form:"sort_by"`
	SortDirection string `form:"sort_direction" binding:"omitempty,oneof=asc desc ASC DESC"`
}

// listRecordsHandler 处理 GET /data-models/:dataModelId/records
func listRecordsHandler(records port.RecordService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var params listRecordsParams
		if err := c.ShouldBindQuery(&params); err != nil {
			_ = c.Error(bindError(err))
			return
		}
		filters, err := parseFilters(c.Request.URL.RawQuery)
		if err != nil {
			_ = c.Error(err)
			return
		}

		page, err := records.ListRecords(c.Request.Context(), domain.RecordListQuery{
			DataModelID:   c.Param("dataModelId"),
			Page:          params.Page,
			Limit:         params.Limit,
			Filters:       filters,
			SortBy:        params.SortBy,
			SortDirection: domain.SortDirection(strings.ToLower(params.SortDirection)),
		})
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": page.Records, "pagination": page.Pagination})
	}
}

type createRecordBody struct {
	Values []domain.AttributeValue `json:"values" binding:"required,dive"`
}

// createRecordHandler 处理 POST /data-models/:dataModelId/records
func createRecordHandler(records port.RecordService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body createRecordBody
		if err := c.ShouldBindJSON(&body); err != nil {
			_ = c.Error(bindError(err))
			return
		}
		rec, err := records.CreateRecord(c.Request.Context(), c.Param("dataModelId"), body.Values)
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"data": rec})
	}
}

// bindError 保留 validator 的字段错误，其余绑定失败 (类型不符、JSON 语法错误) 归为校验错误
func bindError(err error) error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		return err
	}
	return fmt.Errorf("%w: %v", port.ErrValidation, err)
}

// parseFilters 按出现顺序解析过滤参数。支持 filters[attr]=raw 与 attr=raw 两种写法，保留参数被跳过。
// url.Values 是 map，会丢失顺序，所以直接解析原始查询串。
func parseFilters(rawQuery string) ([]domain.FilterEntry, error) {
	var out []domain.FilterEntry
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			return nil, fmt.Errorf("%w: 无法解析查询参数名 '%s'", port.ErrValidation, rawKey)
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return nil, fmt.Errorf("%w: 无法解析查询参数 '%s' 的值", port.ErrValidation, key)
		}

		if strings.HasPrefix(key, "filters[") && strings.HasSuffix(key, "]") {
			key = strings.TrimSuffix(strings.TrimPrefix(key, "filters["), "]")
		} else if recordquery.IsReserved(key) {
			continue
		}
		if key == "" || recordquery.IsReserved(key) {
			continue
		}
		out = append(out, domain.FilterEntry{Attribute: key, Raw: value})
	}
	return out, nil
}
