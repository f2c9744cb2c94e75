// Package domain file: internal/core/domain/data_model.go
package domain

import "time"

// SourceKind 标识一个数据模型的记录存放在哪里
type SourceKind string

const (
	// SourceInternal 记录以属性-值 (EAV) 形式保存在平台自己的库中
	SourceInternal SourceKind = "INTERNAL"
	// SourceExternal 记录实时代理自运营方已有的外部关系库
	SourceExternal SourceKind = "EXTERNAL"
)

// ConnectionKind 外部连接声明的数据库类型，决定使用哪种 SQL 方言
type ConnectionKind string

const (
	ConnPostgres ConnectionKind = "postgresql"
	ConnMySQL    ConnectionKind = "mysql"
	ConnSQLite   ConnectionKind = "sqlite"
)

// DataModel 是运营方自定义的实体 Schema 描述
type DataModel struct {
	ID                       string     `json:"id"`
	Name                     string     `json:"name"`
	SourceKind               SourceKind `json:"source_kind"`
	ExternalConnectionRef    string     `json:"external_connection_ref,omitempty"`
	ExternalSchema           string     `json:"external_schema,omitempty"`
	ExternalTable            string     `json:"external_table,omitempty"`
	ExternalPrimaryKeyColumn string     `json:"external_primary_key_column,omitempty"`
	IsActive                 bool       `json:"is_active"`
	DeletedAt                *time.Time `json:"deleted_at,omitempty"`
}

// IsExternal 判断该模型是否来自外部数据源
func (m *DataModel) IsExternal() bool {
	return m.SourceKind == SourceExternal
}

// Attribute 是数据模型下的一个属性。调用方只通过 Name 引用属性，ExternalColumn 属于内部细节。
type Attribute struct {
	ID             string `json:"id"`
	DataModelID    string `json:"data_model_id"`
	Name           string `json:"name"`
	DataType       string `json:"data_type"`
	ExternalColumn string `json:"-"`
	Order          int    `json:"order"`
}

// ConnectionDescriptor 描述如何连接一个外部数据库
type ConnectionDescriptor struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Kind ConnectionKind `json:"kind"`
	DSN  string         `json:"-"`
}

// Catalog 是属性目录解析器的输出：模型描述 + 有序属性列表 + (外部模型的) 连接描述
type Catalog struct {
	Model      DataModel
	Attributes []Attribute
	Connection *ConnectionDescriptor
}

// AttributeByName 按名称查找属性
func (c *Catalog) AttributeByName(name string) (Attribute, bool) {
	for _, a := range c.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// ColumnFor 返回外部模型中某属性映射的列名；未映射时 ok 为 false
func (c *Catalog) ColumnFor(name string) (string, bool) {
	a, ok := c.AttributeByName(name)
	if !ok || a.ExternalColumn == "" {
		return "", false
	}
	return a.ExternalColumn, true
}
