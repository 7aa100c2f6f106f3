package handler

import (
	"github.com/rembon2016/cts-merchant-sub001/internal/catalog"
	"github.com/rembon2016/cts-merchant-sub001/internal/service"
	"github.com/rembon2016/cts-merchant-sub001/internal/ws"

	"github.com/gofiber/fiber/v2"
)

type CatalogHandler struct {
	workspaces *service.Workspaces
	events     Publisher
}

func NewCatalogHandler(workspaces *service.Workspaces, events Publisher) *CatalogHandler {
	return &CatalogHandler{workspaces: workspaces, events: publisherOrNop(events)}
}

// listing renders the loaded products with their branch stock and price resolved.
func listing(store *catalog.Store) fiber.Map {
	st := store.State()
	return fiber.Map{
		"data":              store.Deriver().Views(st.Products),
		"current_page":      st.CurrentPage,
		"has_more_products": st.HasMoreProducts,
		"total":             st.Total,
	}
}

// GetProducts loads a page of products
// GET /api/v1/catalog/products?page=&per_page=&category_id=&search=&reset=
func (h *CatalogHandler) GetProducts(c *fiber.Ctx) error {
	var params catalog.Params
	if err := c.QueryParser(&params); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid query"})
	}

	store := workspace(c, h.workspaces).Catalog
	if err := store.GetProducts(c.UserContext(), params); err != nil {
		return respondError(c, err)
	}
	return c.JSON(listing(store))
}

// LoadMoreProducts appends the next page, keeping the filters of the last listing
// GET /api/v1/catalog/products/more
func (h *CatalogHandler) LoadMoreProducts(c *fiber.Ctx) error {
	store := workspace(c, h.workspaces).Catalog
	if err := store.LoadMoreProducts(c.UserContext(), store.CurrentParams()); err != nil {
		return respondError(c, err)
	}
	return c.JSON(listing(store))
}

func (h *CatalogHandler) GetProduct(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid product ID"})
	}

	store := workspace(c, h.workspaces).Catalog
	p, err := store.GetProductDetail(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": store.Deriver().View(*p)})
}

func (h *CatalogHandler) GetCategories(c *fiber.Ctx) error {
	categories, err := workspace(c, h.workspaces).Catalog.GetCategories(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": categories})
}

// GetReferences serves brands, units and product types
// GET /api/v1/catalog/:kind (brands | units | type-products)
func (h *CatalogHandler) GetReferences(c *fiber.Ctx) error {
	store := workspace(c, h.workspaces).Catalog
	var load func() (any, error)
	switch c.Params("kind") {
	case "brands":
		load = func() (any, error) { return store.GetBrands(c.UserContext()) }
	case "units":
		load = func() (any, error) { return store.GetUnits(c.UserContext()) }
	case "type-products":
		load = func() (any, error) { return store.GetTypeProducts(c.UserContext()) }
	default:
		return c.Status(404).JSON(fiber.Map{"error": "Unknown reference list"})
	}

	refs, err := load()
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": refs})
}

// CreateProduct accepts JSON or multipart with a "payload" JSON field and an "image" file
// POST /api/v1/catalog/products
func (h *CatalogHandler) CreateProduct(c *fiber.Ctx) error {
	var in catalog.ProductInput
	img, err := parseForm(c, &in)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid product form"})
	}
	if img != nil {
		in.Image = img
	}

	p, err := workspace(c, h.workspaces).Catalog.AddProduct(c.UserContext(), &in)
	if err != nil {
		return respondError(c, err)
	}
	h.publish("product_created", p)
	return c.Status(201).JSON(fiber.Map{"message": "Product created", "data": p})
}

func (h *CatalogHandler) UpdateProduct(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid product ID"})
	}
	var in catalog.ProductInput
	img, err := parseForm(c, &in)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid product form"})
	}
	if img != nil {
		in.Image = img
	}

	p, err := workspace(c, h.workspaces).Catalog.EditProduct(c.UserContext(), id, &in)
	if err != nil {
		return respondError(c, err)
	}
	h.publish("product_updated", p)
	return c.JSON(fiber.Map{"message": "Product updated", "data": p})
}

func (h *CatalogHandler) DeleteProduct(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid product ID"})
	}
	if err := workspace(c, h.workspaces).Catalog.RemoveProduct(c.UserContext(), id); err != nil {
		return respondError(c, err)
	}
	h.publish("product_deleted", fiber.Map{"id": id})
	return c.JSON(fiber.Map{"message": "Product deleted"})
}

func (h *CatalogHandler) CreateCategory(c *fiber.Ctx) error {
	var in catalog.CategoryInput
	img, err := parseForm(c, &in)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid category form"})
	}
	if img != nil {
		in.Image = img
	}

	cat, err := workspace(c, h.workspaces).Catalog.AddCategory(c.UserContext(), &in)
	if err != nil {
		return respondError(c, err)
	}
	h.publish("category_created", cat)
	return c.Status(201).JSON(fiber.Map{"message": "Category created", "data": cat})
}

func (h *CatalogHandler) UpdateCategory(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid category ID"})
	}
	var in catalog.CategoryInput
	img, err := parseForm(c, &in)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid category form"})
	}
	if img != nil {
		in.Image = img
	}

	cat, err := workspace(c, h.workspaces).Catalog.EditCategory(c.UserContext(), id, &in)
	if err != nil {
		return respondError(c, err)
	}
	h.publish("category_updated", cat)
	return c.JSON(fiber.Map{"message": "Category updated", "data": cat})
}

func (h *CatalogHandler) DeleteCategory(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid category ID"})
	}
	if err := workspace(c, h.workspaces).Catalog.RemoveCategory(c.UserContext(), id); err != nil {
		return respondError(c, err)
	}
	h.publish("category_deleted", fiber.Map{"id": id})
	return c.JSON(fiber.Map{"message": "Category deleted"})
}

// publish broadcasts catalog changes to every session.
func (h *CatalogHandler) publish(action string, data any) {
	h.events.Publish("", ws.Event{Type: ws.TypeCatalog, Action: action, Data: data})
}
