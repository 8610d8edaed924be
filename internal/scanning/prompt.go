package scanning

// labelReaderRole is sent as the system instruction to every vision backend
const labelReaderRole = "You are an expert at reading nutrition facts labels on food packaging. You must carefully read all text in images and extract accurate values."

// labelScanPrompt asks for one label as a JSON object matching LabelData
const labelScanPrompt = `You are analyzing a photo of a packaged food product. Carefully read the nutrition facts panel and any packaging text and extract the following information:

1. **Product Name**: The product name as printed on the package. Include the brand separately if visible.

2. **Serving Size**: The serving size amount and unit as printed (e.g., 30 and "g", or 240 and "ml"). If the label only shows per 100 g values, use 100 and "g".

3. **Nutrients per serving**: Calories (kcal), protein (g), total carbohydrates (g), total fat (g), sodium (mg), total sugars (g), and dietary fiber (g). Convert kJ to kcal by dividing by 4.184 when only kJ is shown. Convert sodium given in grams to milligrams, and derive sodium from salt by dividing by 2.5 when only salt is shown.

4. **Confidence**: An integer from 0 to 100 describing how sure you are that the values are correct. Use a low value when the label is blurry, cut off, at an angle, or when you had to estimate.

Return ONLY valid JSON in this exact format:
{
  "name": "Product Name",
  "brand": "Brand",
  "serving_size": 0,
  "serving_unit": "g",
  "calories": 0,
  "protein": 0,
  "carbs": 0,
  "fat": 0,
  "sodium": 0,
  "sugar": 0,
  "fiber": 0,
  "confidence": 0
}

Important:
- All nutrient values must be numbers (not strings)
- If you cannot find a value, use null for that field
- If there is no nutrition label in the photo, estimate typical values for the product and use a confidence below 40
- Do not include any text before or after the JSON
- Do not use markdown code blocks`
