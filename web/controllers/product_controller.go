package controllers

import (
	"strings"

	"github.com/kataras/iris/v12"

	"github.com/KumarG23/nep-back/internal/apperr"
	"github.com/KumarG23/nep-back/internal/datamodels/product"
	"github.com/KumarG23/nep-back/internal/middleware"
	"github.com/KumarG23/nep-back/internal/service"
)

// 上传附图的最大体积
const maxImageSize = 10 << 20

// ProductController 商品目录接口：商品、分类、附图、评价
type ProductController struct {
	productService *service.ProductService
}

func NewProductController(productSvc *service.ProductService) *ProductController {
	return &ProductController{productService: productSvc}
}

// List GET /products?category=<id>&q=<keyword>
func (c *ProductController) List(ctx iris.Context) {
	categoryID, err := queryInt64(ctx, "category")
	if err != nil {
		WriteError(ctx, err)
		return
	}
	list, err := c.productService.List(ctx.Request().Context(), categoryID)
	if err != nil {
		WriteError(ctx, err)
		return
	}

	// 按名称做简单的关键字过滤
	if kw := strings.ToLower(strings.TrimSpace(ctx.URLParam("q"))); kw != "" {
		filtered := make([]*product.Product, 0, len(list))
		for _, p := range list {
			if strings.Contains(strings.ToLower(p.Name), kw) {
				filtered = append(filtered, p)
			}
		}
		list = filtered
	}
	writeJSON(ctx, iris.StatusOK, list)
}

// Get GET /products/{id}
func (c *ProductController) Get(ctx iris.Context) {
	p, err := c.productService.GetByID(ctx.Request().Context(), idParam(ctx))
	if err != nil {
		WriteError(ctx, err)
		return
	}
	writeJSON(ctx, iris.StatusOK, p)
}

// Create POST /admin/products/add
func (c *ProductController) Create(ctx iris.Context) {
	var in service.ProductInput
	if err := readJSON(ctx, &in); err != nil {
		WriteError(ctx, err)
		return
	}
	p, err := c.productService.Create(ctx.Request().Context(), in)
	if err != nil {
		WriteError(ctx, err)
		return
	}
	writeJSON(ctx, iris.StatusCreated, p)
}

// Update PUT /admin/products/{id}/update，只修改请求中出现的字段
func (c *ProductController) Update(ctx iris.Context) {
	var in service.ProductInput
	if err := readJSON(ctx, &in); err != nil {
		WriteError(ctx, err)
		return
	}
	p, err := c.productService.Update(ctx.Request().Context(), idParam(ctx), in)
	if err != nil {
		WriteError(ctx, err)
		return
	}
	writeJSON(ctx, iris.StatusOK, p)
}

// Delete DELETE /admin/products/{id}/delete
func (c *ProductController) Delete(ctx iris.Context) {
	if err := c.productService.Delete(ctx.Request().Context(), idParam(ctx)); err != nil {
		WriteError(ctx, err)
		return
	}
	ctx.StatusCode(iris.StatusNoContent)
}

func (c *ProductController) ListCategories(ctx iris.Context) {
	list, err := c.productService.ListCategories(ctx.Request().Context())
	if err != nil {
		WriteError(ctx, err)
		return
	}
	writeJSON(ctx, iris.StatusOK, list)
}

func (c *ProductController) CreateCategory(ctx iris.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := readJSON(ctx, &req); err != nil {
		WriteError(ctx, err)
		return
	}
	cat, err := c.productService.CreateCategory(ctx.Request().Context(), req.Name)
	if err != nil {
		WriteError(ctx, err)
		return
	}
	writeJSON(ctx, iris.StatusCreated, cat)
}

// ListImages GET /product-images?product=<id>
func (c *ProductController) ListImages(ctx iris.Context) {
	productID, err := queryInt64(ctx, "product")
	if err != nil {
		WriteError(ctx, err)
		return
	}
	list, err := c.productService.ListImages(ctx.Request().Context(), productID)
	if err != nil {
		WriteError(ctx, err)
		return
	}
	writeJSON(ctx, iris.StatusOK, list)
}

func (c *ProductController) GetImage(ctx iris.Context) {
	img, err := c.productService.GetImage(ctx.Request().Context(), idParam(ctx))
	if err != nil {
		WriteError(ctx, err)
		return
	}
	writeJSON(ctx, iris.StatusOK, img)
}

// UploadImage POST /product-images，multipart 表单字段 product 与 image
func (c *ProductController) UploadImage(ctx iris.Context) {
	ctx.SetMaxRequestBodySize(maxImageSize)
	productID, err := ctx.PostValueInt64("product")
	if err != nil || productID <= 0 {
		WriteError(ctx, apperr.Validation("product", "This field is required."))
		return
	}
	file, header, err := ctx.FormFile("image")
	if err != nil {
		WriteError(ctx, apperr.Validation("image", "No file was submitted."))
		return
	}
	defer file.Close()

	img, err := c.productService.AddImage(ctx.Request().Context(), productID, header.Filename, file)
	if err != nil {
		WriteError(ctx, err)
		return
	}
	writeJSON(ctx, iris.StatusCreated, img)
}

func (c *ProductController) DeleteImage(ctx iris.Context) {
	if err := c.productService.DeleteImage(ctx.Request().Context(), idParam(ctx)); err != nil {
		WriteError(ctx, err)
		return
	}
	ctx.StatusCode(iris.StatusNoContent)
}

// ListReviews GET /products/{id}/reviews
func (c *ProductController) ListReviews(ctx iris.Context) {
	list, err := c.productService.ListReviews(ctx.Request().Context(), idParam(ctx))
	if err != nil {
		WriteError(ctx, err)
		return
	}
	writeJSON(ctx, iris.StatusOK, list)
}

// AddReview POST /products/{id}/reviews
func (c *ProductController) AddReview(ctx iris.Context) {
	var req struct {
		Rating  int    `json:"rating"`
		Comment string `json:"comment"`
	}
	if err := readJSON(ctx, &req); err != nil {
		WriteError(ctx, err)
		return
	}
	r, err := c.productService.AddReview(ctx.Request().Context(), middleware.IdentityFrom(ctx), idParam(ctx), req.Rating, req.Comment)
	if err != nil {
		WriteError(ctx, err)
		return
	}
	writeJSON(ctx, iris.StatusCreated, r)
}
