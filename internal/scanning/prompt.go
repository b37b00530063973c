package scanning

// MenuPrompt is the fixed instruction sent with every menu image
const MenuPrompt = `You are reading a photo or scan of a restaurant menu. Extract every dish together with its price.

Rules:
- Skip the restaurant name, logos, addresses, phone numbers and opening hours.
- Headings only matter when they name a category of dishes (e.g. "Starters", "Main Course", "Beverages").
- Menus are often laid out in several columns. A dish name can sit left of, above, below or diagonally from its price.
- Pair every dish with the nearest price below it, never with a price above it.
- Skip decorative labels such as "chef special", "spicy" or "new".
- If the price is printed as "MRP", return "MRP" as the price.
- If a dish lists several prices (sizes, half/full), return the most relevant one.
- Return each dish only once.
- Correct obvious OCR mistakes in dish names (e.g. "Biryam" is "Biryani").
- Put every dish under the category heading it appears beneath. If there is none, use "Unknown".

Output format, JSON only:
[
  {
    "category": "string",
    "item": "string",
    "price": "string"
  }
]

All three fields are strings. Do not return anything except the JSON array.`
