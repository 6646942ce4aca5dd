package models

import (
	"time"
)

// 内容类型
const (
	ContentTypeRecipe  = "recipes"
	ContentTypeArticle = "articles"
	ContentTypeGuide   = "guides"
)

// ContentRecord is one recipe or article as loaded from the content directory.
// Empty optional strings mean the field is absent.
type ContentRecord struct {
	Slug          string    `yaml:"slug" json:"slug"`
	Type          string    `yaml:"-" json:"type"`
	Title         string    `yaml:"title" json:"title"`
	Description   string    `yaml:"description" json:"description,omitempty"`
	Category      string    `yaml:"category" json:"category"`
	Subcategory   string    `yaml:"subcategory" json:"subcategory,omitempty"`
	Tags          []string  `yaml:"tags" json:"tags,omitempty"`
	Cuisine       string    `yaml:"cuisine" json:"cuisine,omitempty"`
	MealType      string    `yaml:"mealType" json:"meal_type,omitempty"`
	CookingMethod string    `yaml:"cookingMethod" json:"cooking_method,omitempty"`
	DietaryTags   []string  `yaml:"dietaryTags" json:"dietary_tags,omitempty"`
	Difficulty    string    `yaml:"difficulty" json:"difficulty,omitempty"`
	PublishedAt   time.Time `yaml:"publishedAt" json:"published_at"`

	// 正文，Markdown 原文
	Body string `yaml:"-" json:"-"`
}

// PillarRecord is a long-form guide that anchors a topic.
type PillarRecord struct {
	Slug            string    `yaml:"slug" json:"slug"`
	Title           string    `yaml:"title" json:"title"`
	Description     string    `yaml:"description" json:"description,omitempty"`
	Topic           string    `yaml:"topic" json:"topic"`
	Tags            []string  `yaml:"tags" json:"tags,omitempty"`
	RelatedKeywords []string  `yaml:"relatedKeywords" json:"related_keywords,omitempty"`
	PublishedAt     time.Time `yaml:"publishedAt" json:"published_at"`

	Body string `yaml:"-" json:"-"`
}
