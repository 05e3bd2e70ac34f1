package checkout

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"pc_store/internal/order"
)

// FileCart 以 JSON 数组保存在本地文件里的购物车。文件不存在视为空车。
type FileCart struct {
	mu   sync.Mutex
	path string
}

func NewFileCart(path string) *FileCart {
	return &FileCart{path: path}
}

func (c *FileCart) Items() ([]order.CartItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var items []order.CartItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("cart %s: %w", c.path, err)
	}
	return items, nil
}

// Save 先写临时文件再 rename，中途失败不会留下半个购物车。
func (c *FileCart) Save(items []order.CartItem) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if items == nil {
		items = []order.CartItem{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".cart-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), c.path)
}

func (c *FileCart) Clear() error {
	return c.Save(nil)
}
